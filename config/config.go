package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StreamProvider selects how virtual items are turned into playable URLs.
type StreamProvider string

const (
	ProviderNone         StreamProvider = "none"
	ProviderDirect       StreamProvider = "direct"
	ProviderRemoteLookup StreamProvider = "remotelookup"
	ProviderAggregator   StreamProvider = "aggregator"
)

// ServerSettings holds process-level options.
type ServerSettings struct {
	Port    int    `json:"port"`
	DataDir string `json:"dataDir"`
	LogFile string `json:"logFile,omitempty"`
}

// IDPreferences is the per-kind ordering of external id providers tried when
// substituting stream URLs. Entries are provider names ("Tmdb", "Imdb", ...).
type IDPreferences struct {
	Movie   []string `json:"movie"`
	Episode []string `json:"episode"`
}

// StreamingSettings configures the provider strategy used by the resolution
// engine. Templates support {id} {imdb} {tmdb} {tvdb} {anilist} {season}
// {episode} {absolute} {audio} {title} placeholders.
type StreamingSettings struct {
	Provider        StreamProvider `json:"provider"`
	MovieTemplate   string         `json:"movieTemplate,omitempty"`
	EpisodeTemplate string         `json:"episodeTemplate,omitempty"`
	RemoteLookupURL string         `json:"remoteLookupUrl,omitempty"`
	AggregatorURL   string         `json:"aggregatorUrl,omitempty"`
	AudioTracks     []string       `json:"audioTracks,omitempty"`
	PreferredIDs    IDPreferences  `json:"preferredIds"`
	AllowUnreleased bool           `json:"allowUnreleased"`
	ProbeHLS        bool           `json:"probeHls"`
}

// PlaybackSettings holds runtime defaults handed to players when no better
// duration could be determined. Players need a non-zero duration for the
// seek/progress UI, so these are never zero.
type PlaybackSettings struct {
	MovieRuntimeMinutes   int   `json:"movieRuntimeMinutes"`
	EpisodeRuntimeMinutes int   `json:"episodeRuntimeMinutes"`
	BitrateEstimate       int64 `json:"bitrateEstimate"`
}

// MetadataSettings configures the runtime-lookup metadata API client.
type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey,omitempty"`
	TMDBURL    string `json:"tmdbUrl,omitempty"`
}

// SubtitleSettings configures the external subtitle provider. An empty
// provider URL disables sidecar subtitles entirely.
type SubtitleSettings struct {
	ProviderURL string `json:"providerUrl,omitempty"`
}

// Settings is the full on-disk configuration. Load returns a copy: callers
// treat it as an immutable snapshot, and a reload produces a new snapshot
// rather than mutating shared state.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Streaming StreamingSettings `json:"streaming"`
	Playback  PlaybackSettings  `json:"playback"`
	Metadata  MetadataSettings  `json:"metadata"`
	Subtitles SubtitleSettings  `json:"subtitles"`
}

// DefaultSettings returns the settings written on first run.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Port:    8776,
			DataDir: "data",
		},
		Streaming: StreamingSettings{
			Provider: ProviderNone,
			PreferredIDs: IDPreferences{
				Movie:   []string{"Tmdb", "Imdb", "Tvdb"},
				Episode: []string{"AniList", "Tvdb", "Tmdb", "Imdb"},
			},
		},
		Playback: PlaybackSettings{
			MovieRuntimeMinutes:   120,
			EpisodeRuntimeMinutes: 24,
			BitrateEstimate:       20_000_000,
		},
	}
}

// Manager loads and saves settings.json.
type Manager struct {
	path string
	mu   sync.RWMutex
}

// NewManager creates a settings manager for the given file path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the settings file, falling back to defaults when it does not
// exist yet. Missing fields are backfilled with their defaults.
func (m *Manager) Load() (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if settings.Playback.MovieRuntimeMinutes <= 0 {
		settings.Playback.MovieRuntimeMinutes = DefaultSettings().Playback.MovieRuntimeMinutes
	}
	if settings.Playback.EpisodeRuntimeMinutes <= 0 {
		settings.Playback.EpisodeRuntimeMinutes = DefaultSettings().Playback.EpisodeRuntimeMinutes
	}
	if settings.Playback.BitrateEstimate <= 0 {
		settings.Playback.BitrateEstimate = DefaultSettings().Playback.BitrateEstimate
	}
	return settings, nil
}

// Save writes the settings file atomically (write temp, rename).
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
