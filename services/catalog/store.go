// Package catalog holds the ephemeral multi-index store for virtual items.
// Every entry family is TTL-bound and independently evicted; losing the whole
// store on restart is acceptable. A miss is a normal outcome, never an error:
// callers treat an absent identity as unknown to this engine and delegate to
// the host's native resolution.
package catalog

import (
	"context"
	"log"
	"sync"
	"time"

	"mirage/models"
)

// Entry family TTLs. The escalation marker intentionally outlives the item
// entry: it prevents duplicate expensive downstream side effects even after
// the browsing cache has expired and been re-populated.
const (
	itemTTL            = time.Hour
	childrenTTL        = time.Hour
	sourceTTL          = time.Hour
	escalationTTL      = 24 * time.Hour
	selectedVariantTTL = 5 * time.Minute
)

// SourceRef maps a derived media-source identity back to the parent item and
// variant key it was derived from, plus what is needed to replay the stream.
type SourceRef struct {
	ParentIdentity string
	VariantKey     string
	URL            string
	FilenameHint   string
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is the ephemeral catalog store. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	items     map[string]entry[models.VirtualItem]
	seasons   map[string]entry[[]models.VirtualItem]
	episodes  map[string]entry[[]models.VirtualItem]
	sources   map[string]entry[SourceRef]
	escalated map[string]entry[struct{}]
	selected  map[string]entry[string]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:       time.Now,
		items:     make(map[string]entry[models.VirtualItem]),
		seasons:   make(map[string]entry[[]models.VirtualItem]),
		episodes:  make(map[string]entry[[]models.VirtualItem]),
		sources:   make(map[string]entry[SourceRef]),
		escalated: make(map[string]entry[struct{}]),
		selected:  make(map[string]entry[string]),
	}
}

// PutItem stores or refreshes a virtual item under its identity. The TTL
// window restarts from this write.
func (s *Store) PutItem(item models.VirtualItem) {
	if item.Identity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.Identity] = entry[models.VirtualItem]{value: item, expiresAt: s.now().Add(itemTTL)}
}

// GetItem looks up a virtual item by identity.
func (s *Store) GetItem(identity string) (models.VirtualItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[identity]
	if !ok || s.now().After(e.expiresAt) {
		return models.VirtualItem{}, false
	}
	return e.value, true
}

// PutSeasons stores the season list of a series and fans each season out as
// its own item entry, so later direct lookups by a season's identity succeed
// without re-deriving the parent listing.
func (s *Store) PutSeasons(seriesIdentity string, seasons []models.VirtualItem) {
	s.putChildren(s.seasons, seriesIdentity, seasons)
}

// PutEpisodes stores the episode list of a series with the same fan-out.
func (s *Store) PutEpisodes(seriesIdentity string, episodes []models.VirtualItem) {
	s.putChildren(s.episodes, seriesIdentity, episodes)
}

func (s *Store) putChildren(index map[string]entry[[]models.VirtualItem], seriesIdentity string, children []models.VirtualItem) {
	if seriesIdentity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	index[seriesIdentity] = entry[[]models.VirtualItem]{value: children, expiresAt: now.Add(childrenTTL)}
	for _, child := range children {
		if child.Identity == "" {
			continue
		}
		s.items[child.Identity] = entry[models.VirtualItem]{value: child, expiresAt: now.Add(itemTTL)}
	}
}

// GetSeasons returns the cached season list of a series.
func (s *Store) GetSeasons(seriesIdentity string) ([]models.VirtualItem, bool) {
	return s.getChildren(s.seasons, seriesIdentity)
}

// GetEpisodes returns the cached episode list of a series.
func (s *Store) GetEpisodes(seriesIdentity string) ([]models.VirtualItem, bool) {
	return s.getChildren(s.episodes, seriesIdentity)
}

// GetEpisodesForSeason is a derived read over the series episode list. It is
// deliberately not a separately maintained index: a second write path could
// drift from the primary list.
func (s *Store) GetEpisodesForSeason(seriesIdentity string, seasonIndex int) ([]models.VirtualItem, bool) {
	episodes, ok := s.getChildren(s.episodes, seriesIdentity)
	if !ok {
		return nil, false
	}
	filtered := make([]models.VirtualItem, 0, len(episodes))
	for _, ep := range episodes {
		if ep.SeasonIndex == seasonIndex {
			filtered = append(filtered, ep)
		}
	}
	return filtered, true
}

func (s *Store) getChildren(index map[string]entry[[]models.VirtualItem], seriesIdentity string) ([]models.VirtualItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := index[seriesIdentity]
	if !ok || s.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// PutSource records the reverse mapping for a derived media-source identity.
func (s *Store) PutSource(sourceIdentity string, ref SourceRef) {
	if sourceIdentity == "" || ref.ParentIdentity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[sourceIdentity] = entry[SourceRef]{value: ref, expiresAt: s.now().Add(sourceTTL)}
}

// GetSource resolves a media-source identity back to its parent and variant.
func (s *Store) GetSource(sourceIdentity string) (SourceRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sources[sourceIdentity]
	if !ok || s.now().After(e.expiresAt) {
		return SourceRef{}, false
	}
	return e.value, true
}

// MarkEscalated records that the expensive downstream escalation for an item
// has been requested.
func (s *Store) MarkEscalated(identity string) {
	if identity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalated[identity] = entry[struct{}]{expiresAt: s.now().Add(escalationTTL)}
}

// Escalated reports whether an escalation marker is still live for the item.
func (s *Store) Escalated(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.escalated[identity]
	return ok && !s.now().After(e.expiresAt)
}

// SelectVariant records the explicitly selected source identity for an item.
// Short-lived: it only bridges the two requests of one playback-start
// sequence.
func (s *Store) SelectVariant(itemIdentity, sourceIdentity string) {
	if itemIdentity == "" || sourceIdentity == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[itemIdentity] = entry[string]{value: sourceIdentity, expiresAt: s.now().Add(selectedVariantTTL)}
}

// SelectedVariant returns the recently selected source identity, if any.
func (s *Store) SelectedVariant(itemIdentity string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.selected[itemIdentity]
	if !ok || s.now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Cleanup drops all expired entries across every family.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	removed += pruneExpired(s.items, now)
	removed += pruneExpired(s.seasons, now)
	removed += pruneExpired(s.episodes, now)
	removed += pruneExpired(s.sources, now)
	removed += pruneExpired(s.escalated, now)
	removed += pruneExpired(s.selected, now)
	if removed > 0 {
		log.Printf("[catalog] cleanup removed %d expired entries", removed)
	}
}

func pruneExpired[V any](m map[string]entry[V], now time.Time) int {
	removed := 0
	for k, e := range m {
		if now.After(e.expiresAt) {
			delete(m, k)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
