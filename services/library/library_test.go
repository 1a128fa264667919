package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"mirage/models"
)

// setupTestLibrary creates a library over a temp database and an in-memory fs.
func setupTestLibrary(t *testing.T) (*Library, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	lib, err := Open(filepath.Join(t.TempDir(), "library.db"), fs)
	if err != nil {
		t.Fatalf("failed to open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib, fs
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "library.db")
	lib, err := Open(path, afero.NewMemMapFs())
	if err != nil {
		t.Fatalf("failed to open library: %v", err)
	}
	lib.Close()
}

func TestLookupReadsPlaceholderFile(t *testing.T) {
	lib, fs := setupTestLibrary(t)

	if err := afero.WriteFile(fs, "/media/matrix.strm", []byte("\nmirage://movie/603\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	premiere := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	item := models.PersistedItem{
		Identity:     "host-1",
		Name:         "The Matrix",
		Kind:         models.KindMovie,
		ExternalIDs:  map[string]string{models.ProviderTmdb: "603", models.ProviderImdb: "tt0133093"},
		PremiereDate: &premiere,
		RuntimeTicks: models.TicksFromMinutes(136),
	}
	if err := lib.SaveItem(context.Background(), item, "/media/matrix.strm"); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	got, found, err := lib.Lookup(context.Background(), "host-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !found {
		t.Fatal("expected item to be found")
	}
	if got.PlaceholderURI != "mirage://movie/603" {
		t.Errorf("expected the placeholder file's first line, got %q", got.PlaceholderURI)
	}
	if got.ExternalIDs[models.ProviderTmdb] != "603" {
		t.Errorf("unexpected ids %v", got.ExternalIDs)
	}
	if got.PremiereDate == nil || !got.PremiereDate.Equal(premiere) {
		t.Errorf("unexpected premiere date %v", got.PremiereDate)
	}
	if got.RuntimeTicks != models.TicksFromMinutes(136) {
		t.Errorf("unexpected runtime %d", got.RuntimeTicks)
	}
}

func TestLookupMissingItem(t *testing.T) {
	lib, _ := setupTestLibrary(t)

	_, found, err := lib.Lookup(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if found {
		t.Error("expected item to be absent")
	}
}

func TestLookupMissingPlaceholderFile(t *testing.T) {
	lib, _ := setupTestLibrary(t)

	item := models.PersistedItem{Identity: "host-2", Kind: models.KindMovie}
	if err := lib.SaveItem(context.Background(), item, "/media/gone.strm"); err != nil {
		t.Fatal(err)
	}

	got, found, err := lib.Lookup(context.Background(), "host-2")
	if err != nil || !found {
		t.Fatalf("Lookup: found=%v err=%v", found, err)
	}
	if got.PlaceholderURI != "" {
		t.Errorf("unreadable placeholder must yield an empty uri, got %q", got.PlaceholderURI)
	}
}

func TestUpdateRuntime(t *testing.T) {
	lib, fs := setupTestLibrary(t)

	if err := afero.WriteFile(fs, "/media/ep.strm", []byte("mirage://anime/21/1/1090"), 0o644); err != nil {
		t.Fatal(err)
	}
	item := models.PersistedItem{Identity: "host-3", Kind: models.KindEpisode, SeasonIndex: 1, EpisodeIndex: 1090}
	if err := lib.SaveItem(context.Background(), item, "/media/ep.strm"); err != nil {
		t.Fatal(err)
	}

	want := models.TicksFromMinutes(24)
	if err := lib.UpdateRuntime(context.Background(), "host-3", want); err != nil {
		t.Fatalf("UpdateRuntime failed: %v", err)
	}
	got, _, err := lib.Lookup(context.Background(), "host-3")
	if err != nil {
		t.Fatal(err)
	}
	if got.RuntimeTicks != want {
		t.Errorf("expected %d ticks, got %d", want, got.RuntimeTicks)
	}

	if err := lib.UpdateRuntime(context.Background(), "missing", want); err == nil {
		t.Error("expected an error for an unknown identity")
	}
}

func TestSaveItemUpsert(t *testing.T) {
	lib, fs := setupTestLibrary(t)

	if err := afero.WriteFile(fs, "/media/a.strm", []byte("mirage://movie/1"), 0o644); err != nil {
		t.Fatal(err)
	}
	item := models.PersistedItem{Identity: "host-4", Name: "First"}
	if err := lib.SaveItem(context.Background(), item, "/media/a.strm"); err != nil {
		t.Fatal(err)
	}
	item.Name = "Renamed"
	if err := lib.SaveItem(context.Background(), item, "/media/a.strm"); err != nil {
		t.Fatal(err)
	}

	got, _, err := lib.Lookup(context.Background(), "host-4")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed" {
		t.Errorf("expected the updated name, got %q", got.Name)
	}
}
