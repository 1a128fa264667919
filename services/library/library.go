// Package library is the host's persisted-item collaborator: a sqlite table of
// items whose media location is a placeholder file on disk. The engine only
// reads from it, except for the runtime write-back.
package library

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/spf13/afero"

	"mirage/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Library reads persisted items from sqlite and their placeholder files from
// the filesystem.
type Library struct {
	db *sql.DB
	fs afero.Fs
}

// Open opens (or creates) the database at path and runs pending migrations.
// The fs is used to read placeholder files; pass afero.NewOsFs() outside tests.
func Open(path string, fs afero.Fs) (*Library, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Library{db: db, fs: fs}, nil
}

func (l *Library) Close() error {
	return l.db.Close()
}

// Lookup loads a persisted item. The PlaceholderURI is read from the item's
// placeholder file; a missing or unreadable file leaves it empty, which the
// caller treats as "not placeholder-backed".
func (l *Library) Lookup(ctx context.Context, identity string) (models.PersistedItem, bool, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT identity, name, kind, placeholder_path,
		       imdb_id, tmdb_id, tvdb_id, anilist_id,
		       season, episode, premiere_date, runtime_ticks
		FROM items WHERE identity = ?`, identity)

	var (
		item            models.PersistedItem
		placeholderPath string
		imdb, tmdb      string
		tvdb, anilist   string
		premiere        sql.NullString
	)
	err := row.Scan(&item.Identity, &item.Name, &item.Kind, &placeholderPath,
		&imdb, &tmdb, &tvdb, &anilist,
		&item.SeasonIndex, &item.EpisodeIndex, &premiere, &item.RuntimeTicks)
	if err == sql.ErrNoRows {
		return models.PersistedItem{}, false, nil
	}
	if err != nil {
		return models.PersistedItem{}, false, fmt.Errorf("lookup item %s: %w", identity, err)
	}

	item.ExternalIDs = make(map[string]string, 4)
	for provider, id := range map[string]string{
		models.ProviderImdb:    imdb,
		models.ProviderTmdb:    tmdb,
		models.ProviderTvdb:    tvdb,
		models.ProviderAniList: anilist,
	} {
		if id != "" {
			item.ExternalIDs[provider] = id
		}
	}
	if premiere.Valid && premiere.String != "" {
		if t, err := time.Parse(time.RFC3339, premiere.String); err == nil {
			item.PremiereDate = &t
		}
	}
	item.PlaceholderURI = l.readPlaceholder(placeholderPath)
	return item, true, nil
}

// readPlaceholder returns the first non-empty line of the placeholder file.
func (l *Library) readPlaceholder(path string) string {
	if path == "" {
		return ""
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		log.Printf("[library] read placeholder %s: %v", path, err)
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// UpdateRuntime writes a discovered runtime back to the item's record.
func (l *Library) UpdateRuntime(ctx context.Context, identity string, ticks int64) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE items SET runtime_ticks = ?, updated_at = datetime('now')
		WHERE identity = ?`, ticks, identity)
	if err != nil {
		return fmt.Errorf("update runtime for %s: %w", identity, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("update runtime: no item %s", identity)
	}
	return nil
}

// SaveItem inserts or replaces an item record. The placeholder file itself is
// written by whoever creates the record.
func (l *Library) SaveItem(ctx context.Context, item models.PersistedItem, placeholderPath string) error {
	var premiere any
	if item.PremiereDate != nil {
		premiere = item.PremiereDate.UTC().Format(time.RFC3339)
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO items (identity, name, kind, placeholder_path,
		                   imdb_id, tmdb_id, tvdb_id, anilist_id,
		                   season, episode, premiere_date, runtime_ticks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			placeholder_path = excluded.placeholder_path,
			imdb_id = excluded.imdb_id,
			tmdb_id = excluded.tmdb_id,
			tvdb_id = excluded.tvdb_id,
			anilist_id = excluded.anilist_id,
			season = excluded.season,
			episode = excluded.episode,
			premiere_date = excluded.premiere_date,
			runtime_ticks = excluded.runtime_ticks,
			updated_at = datetime('now')`,
		item.Identity, item.Name, item.Kind, placeholderPath,
		item.ExternalIDs[models.ProviderImdb], item.ExternalIDs[models.ProviderTmdb],
		item.ExternalIDs[models.ProviderTvdb], item.ExternalIDs[models.ProviderAniList],
		item.SeasonIndex, item.EpisodeIndex, premiere, item.RuntimeTicks)
	if err != nil {
		return fmt.Errorf("save item %s: %w", item.Identity, err)
	}
	return nil
}
