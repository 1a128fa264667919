package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirage/models"
)

// fakeClock lets tests move the store's notion of now forward.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore()
	s.now = clock.now
	return s, clock
}

func TestPutGetItem(t *testing.T) {
	s, _ := newTestStore()

	item := models.VirtualItem{Identity: "abc", Kind: models.KindMovie, DisplayName: "The Matrix"}
	s.PutItem(item)

	got, ok := s.GetItem("abc")
	require.True(t, ok)
	assert.Equal(t, "The Matrix", got.DisplayName)

	_, ok = s.GetItem("missing")
	assert.False(t, ok)
}

func TestItemExpiresAfterTTL(t *testing.T) {
	s, clock := newTestStore()
	s.PutItem(models.VirtualItem{Identity: "abc"})

	clock.advance(59 * time.Minute)
	_, ok := s.GetItem("abc")
	assert.True(t, ok)

	clock.advance(2 * time.Minute)
	_, ok = s.GetItem("abc")
	assert.False(t, ok, "item should be absent after the 1h TTL")
}

func TestPutEpisodesFansOutItems(t *testing.T) {
	s, _ := newTestStore()

	episodes := []models.VirtualItem{
		{Identity: "ep1", Kind: models.KindEpisode, SeriesIdentity: "series", SeasonIndex: 1, EpisodeIndex: 1},
		{Identity: "ep2", Kind: models.KindEpisode, SeriesIdentity: "series", SeasonIndex: 1, EpisodeIndex: 2},
		{Identity: "ep3", Kind: models.KindEpisode, SeriesIdentity: "series", SeasonIndex: 2, EpisodeIndex: 1},
	}
	s.PutEpisodes("series", episodes)

	// Direct lookup by a child's identity succeeds without the parent listing.
	got, ok := s.GetItem("ep2")
	require.True(t, ok)
	assert.Equal(t, 2, got.EpisodeIndex)

	listed, ok := s.GetEpisodes("series")
	require.True(t, ok)
	assert.Len(t, listed, 3)
}

func TestGetEpisodesForSeasonFiltersDerived(t *testing.T) {
	s, _ := newTestStore()
	s.PutEpisodes("series", []models.VirtualItem{
		{Identity: "ep1", SeasonIndex: 1, EpisodeIndex: 1},
		{Identity: "ep2", SeasonIndex: 2, EpisodeIndex: 1},
		{Identity: "ep3", SeasonIndex: 2, EpisodeIndex: 2},
	})

	season2, ok := s.GetEpisodesForSeason("series", 2)
	require.True(t, ok)
	require.Len(t, season2, 2)
	assert.Equal(t, "ep2", season2[0].Identity)

	_, ok = s.GetEpisodesForSeason("unknown", 1)
	assert.False(t, ok)
}

func TestSourceReverseLookup(t *testing.T) {
	s, _ := newTestStore()

	ref := SourceRef{
		ParentIdentity: "parent",
		VariantKey:     "dub",
		URL:            "https://cdn.example.com/stream.m3u8",
		FilenameHint:   "show.s01e01.mkv",
	}
	s.PutSource("source-id", ref)

	got, ok := s.GetSource("source-id")
	require.True(t, ok)
	assert.Equal(t, ref, got)
}

func TestEscalationMarkerOutlivesItem(t *testing.T) {
	s, clock := newTestStore()

	s.PutItem(models.VirtualItem{Identity: "abc"})
	s.MarkEscalated("abc")

	clock.advance(90 * time.Minute)

	_, ok := s.GetItem("abc")
	assert.False(t, ok, "item entry should have expired")
	assert.True(t, s.Escalated("abc"), "escalation marker should still be live at 90m")

	clock.advance(23 * time.Hour)
	assert.False(t, s.Escalated("abc"))
}

func TestSelectedVariantIsShortLived(t *testing.T) {
	s, clock := newTestStore()

	s.SelectVariant("item", "source-id")
	got, ok := s.SelectedVariant("item")
	require.True(t, ok)
	assert.Equal(t, "source-id", got)

	clock.advance(6 * time.Minute)
	_, ok = s.SelectedVariant("item")
	assert.False(t, ok)
}

func TestCleanupDropsExpiredEntries(t *testing.T) {
	s, clock := newTestStore()

	s.PutItem(models.VirtualItem{Identity: "old"})
	s.PutSource("src", SourceRef{ParentIdentity: "old"})
	clock.advance(2 * time.Hour)
	s.PutItem(models.VirtualItem{Identity: "fresh"})

	s.Cleanup()

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.NotContains(t, s.items, "old")
	assert.NotContains(t, s.sources, "src")
	assert.Contains(t, s.items, "fresh")
}
