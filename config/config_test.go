package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "settings.json"))

	settings, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Streaming.Provider != ProviderNone {
		t.Errorf("expected provider %q, got %q", ProviderNone, settings.Streaming.Provider)
	}
	if settings.Playback.MovieRuntimeMinutes != 120 {
		t.Errorf("expected movie runtime default 120, got %d", settings.Playback.MovieRuntimeMinutes)
	}
	if settings.Playback.EpisodeRuntimeMinutes != 24 {
		t.Errorf("expected episode runtime default 24, got %d", settings.Playback.EpisodeRuntimeMinutes)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	settings := DefaultSettings()
	settings.Streaming.Provider = ProviderDirect
	settings.Streaming.MovieTemplate = "https://player.example.com/movie/{tmdb}"
	settings.Streaming.AudioTracks = []string{"sub", "dub"}
	if err := m.Save(settings); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Streaming.Provider != ProviderDirect {
		t.Errorf("expected provider %q, got %q", ProviderDirect, loaded.Streaming.Provider)
	}
	if loaded.Streaming.MovieTemplate != settings.Streaming.MovieTemplate {
		t.Errorf("template mismatch: %q", loaded.Streaming.MovieTemplate)
	}
	if len(loaded.Streaming.AudioTracks) != 2 {
		t.Errorf("expected 2 audio tracks, got %v", loaded.Streaming.AudioTracks)
	}
}

func TestLoadBackfillsZeroDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"playback":{"movieRuntimeMinutes":0}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	settings, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings.Playback.MovieRuntimeMinutes != 120 {
		t.Errorf("expected backfilled movie runtime 120, got %d", settings.Playback.MovieRuntimeMinutes)
	}
	if settings.Playback.BitrateEstimate != 20_000_000 {
		t.Errorf("expected backfilled bitrate, got %d", settings.Playback.BitrateEstimate)
	}
}
