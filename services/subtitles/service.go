// Package subtitles caches fetched WebVTT sidecars and advertises them as
// delivery URLs on playback sources. The actual subtitle provider sits behind
// the Fetcher interface.
package subtitles

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"mirage/models"
)

const cacheTTL = 6 * time.Hour

// Fetcher retrieves WebVTT subtitle bodies from an external provider.
type Fetcher interface {
	// Languages lists the language codes available for the item.
	Languages(ctx context.Context, item models.VirtualItem) ([]string, error)
	// Fetch downloads one WebVTT document.
	Fetch(ctx context.Context, item models.VirtualItem, langCode string) ([]byte, error)
}

type cachedVTT struct {
	body      []byte
	expiresAt time.Time
}

// Service resolves subtitle tracks for items and serves their bodies.
type Service struct {
	fetcher Fetcher

	mu    sync.RWMutex
	cache map[string]cachedVTT
	now   func() time.Time
}

func NewService(fetcher Fetcher) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   make(map[string]cachedVTT),
		now:     time.Now,
	}
}

// TracksFor lists the subtitle tracks available for an item. Provider failures
// degrade to no tracks; playback never fails over subtitles.
func (s *Service) TracksFor(ctx context.Context, item models.VirtualItem) []models.SubtitleTrack {
	if s == nil || s.fetcher == nil {
		return nil
	}
	codes, err := s.fetcher.Languages(ctx, item)
	if err != nil {
		log.Printf("[subtitles] language listing for %q failed: %v", item.DisplayName, err)
		return nil
	}

	tracks := make([]models.SubtitleTrack, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, raw := range codes {
		code, name, ok := normalizeLanguage(raw)
		if !ok || seen[code] {
			continue
		}
		seen[code] = true
		tracks = append(tracks, models.SubtitleTrack{
			Language:     name,
			LanguageCode: code,
			DeliveryURL:  fmt.Sprintf("/subtitles/%s/%s.vtt", item.Identity, code),
		})
	}
	return tracks
}

// WebVTT returns the subtitle body for a previously advertised track.
func (s *Service) WebVTT(ctx context.Context, item models.VirtualItem, langCode string) ([]byte, error) {
	if s == nil || s.fetcher == nil {
		return nil, fmt.Errorf("no subtitle provider configured")
	}
	code, _, ok := normalizeLanguage(langCode)
	if !ok {
		return nil, fmt.Errorf("unknown language %q", langCode)
	}

	key := item.Identity + ":" + code
	s.mu.RLock()
	entry, hit := s.cache[key]
	s.mu.RUnlock()
	if hit && s.now().Before(entry.expiresAt) {
		return entry.body, nil
	}

	body, err := s.fetcher.Fetch(ctx, item, code)
	if err != nil {
		return nil, fmt.Errorf("fetch subtitles for %s/%s: %w", item.Identity, code, err)
	}
	s.mu.Lock()
	s.cache[key] = cachedVTT{body: body, expiresAt: s.now().Add(cacheTTL)}
	s.mu.Unlock()
	return body, nil
}

// Cleanup drops expired bodies and returns how many were removed.
func (s *Service) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.cache {
		if s.now().After(entry.expiresAt) {
			delete(s.cache, key)
			removed++
		}
	}
	return removed
}

// normalizeLanguage canonicalizes a provider's language code to a BCP 47 base
// tag and its English display name.
func normalizeLanguage(raw string) (code, name string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", "", false
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", "", false
	}
	code = base.String()
	name = display.English.Languages().Name(language.Make(code))
	if name == "" {
		name = code
	}
	return code, name, true
}
