// Package metadata answers runtime questions against the TMDB API. It keeps
// its own in-memory cache so a burst of playback starts for the same title
// costs one upstream round trip.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"mirage/models"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

const (
	runtimeCacheTTL  = 24 * time.Hour
	negativeCacheTTL = time.Hour
)

type runtimeEntry struct {
	ticks     int64
	ok        bool
	expiresAt time.Time
}

// Service is a minimal TMDB client covering runtime and id lookups.
type Service struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	cache map[string]runtimeEntry
	now   func() time.Time
}

// NewService creates a client. baseURL overrides the public API host, for
// proxies; empty means the default.
func NewService(apiKey, baseURL string, httpc *http.Client) *Service {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Service{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpc:   httpc,
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		cache:   make(map[string]runtimeEntry),
		now:     time.Now,
	}
}

func (s *Service) configured() bool {
	return s != nil && s.apiKey != ""
}

// MovieRuntimeTicks returns the movie's runtime. The second return is false
// when the API has no answer, not only on transport failure.
func (s *Service) MovieRuntimeTicks(ctx context.Context, externalIDs map[string]string) (int64, bool) {
	if !s.configured() {
		return 0, false
	}
	tmdbID := s.tmdbID(ctx, externalIDs, "movie")
	if tmdbID == "" {
		return 0, false
	}

	key := "movie:" + tmdbID
	if ticks, ok, hit := s.cached(key); hit {
		return ticks, ok
	}

	var details struct {
		Runtime int `json:"runtime"`
	}
	if err := s.get(ctx, "/movie/"+tmdbID, &details); err != nil {
		log.Printf("[metadata] movie %s runtime lookup failed: %v", tmdbID, err)
		return 0, false
	}
	ticks := models.TicksFromMinutes(details.Runtime)
	s.store(key, ticks, details.Runtime > 0)
	return ticks, details.Runtime > 0
}

// EpisodeRuntimeTicks returns the episode's runtime, falling back to the
// series' typical episode length when the episode record has none.
func (s *Service) EpisodeRuntimeTicks(ctx context.Context, externalIDs map[string]string, season, episode int) (int64, bool) {
	if !s.configured() || season <= 0 || episode <= 0 {
		return 0, false
	}
	tmdbID := s.tmdbID(ctx, externalIDs, "tv")
	if tmdbID == "" {
		return 0, false
	}

	key := fmt.Sprintf("tv:%s:%d:%d", tmdbID, season, episode)
	if ticks, ok, hit := s.cached(key); hit {
		return ticks, ok
	}

	var details struct {
		Runtime int `json:"runtime"`
	}
	path := fmt.Sprintf("/tv/%s/season/%d/episode/%d", tmdbID, season, episode)
	if err := s.get(ctx, path, &details); err != nil {
		log.Printf("[metadata] episode %s s%de%d runtime lookup failed: %v", tmdbID, season, episode, err)
	}
	minutes := details.Runtime
	if minutes <= 0 {
		minutes = s.seriesEpisodeMinutes(ctx, tmdbID)
	}
	ticks := models.TicksFromMinutes(minutes)
	s.store(key, ticks, minutes > 0)
	return ticks, minutes > 0
}

// seriesEpisodeMinutes reads the series-level episode_run_time list.
func (s *Service) seriesEpisodeMinutes(ctx context.Context, tmdbID string) int {
	key := "tv-series:" + tmdbID
	if ticks, ok, hit := s.cached(key); hit {
		if !ok {
			return 0
		}
		return int(models.TicksToDuration(ticks) / time.Minute)
	}

	var details struct {
		EpisodeRunTime []int `json:"episode_run_time"`
	}
	if err := s.get(ctx, "/tv/"+tmdbID, &details); err != nil {
		log.Printf("[metadata] series %s lookup failed: %v", tmdbID, err)
		return 0
	}
	minutes := 0
	if len(details.EpisodeRunTime) > 0 {
		minutes = details.EpisodeRunTime[0]
	}
	s.store(key, models.TicksFromMinutes(minutes), minutes > 0)
	return minutes
}

// tmdbID picks the TMDB id from the provided ids, resolving through the find
// endpoint when only an IMDB id is available.
func (s *Service) tmdbID(ctx context.Context, externalIDs map[string]string, mediaType string) string {
	if id := externalIDs[models.ProviderTmdb]; id != "" {
		return id
	}
	imdb := externalIDs[models.ProviderImdb]
	if imdb == "" {
		return ""
	}
	if !strings.HasPrefix(imdb, "tt") {
		imdb = "tt" + imdb
	}

	key := "find:" + mediaType + ":" + imdb
	if ticks, ok, hit := s.cached(key); hit {
		if !ok {
			return ""
		}
		return strconv.FormatInt(ticks, 10)
	}

	var found struct {
		MovieResults []struct {
			ID int64 `json:"id"`
		} `json:"movie_results"`
		TVResults []struct {
			ID int64 `json:"id"`
		} `json:"tv_results"`
	}
	if err := s.get(ctx, "/find/"+imdb+"?external_source=imdb_id", &found); err != nil {
		log.Printf("[metadata] find for %s failed: %v", imdb, err)
		return ""
	}

	var id int64
	if mediaType == "tv" && len(found.TVResults) > 0 {
		id = found.TVResults[0].ID
	} else if mediaType == "movie" && len(found.MovieResults) > 0 {
		id = found.MovieResults[0].ID
	}
	// The id mapping never changes, so cache the miss too.
	s.store(key, id, id > 0)
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func (s *Service) cached(key string) (int64, bool, bool) {
	s.mu.RLock()
	entry, hit := s.cache[key]
	s.mu.RUnlock()
	if !hit || s.now().After(entry.expiresAt) {
		return 0, false, false
	}
	return entry.ticks, entry.ok, true
}

func (s *Service) store(key string, ticks int64, ok bool) {
	ttl := runtimeCacheTTL
	if !ok {
		ttl = negativeCacheTTL
	}
	s.mu.Lock()
	s.cache[key] = runtimeEntry{ticks: ticks, ok: ok, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
}

func (s *Service) get(ctx context.Context, path string, v any) error {
	u := s.baseURL + path
	if strings.Contains(u, "?") {
		u += "&api_key=" + s.apiKey
	} else {
		u += "?api_key=" + s.apiKey
	}

	return retry.Do(
		func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := s.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(fmt.Errorf("tmdb get %s: %s", path, resp.Status))
			}
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return fmt.Errorf("tmdb get %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
			}
			return json.NewDecoder(resp.Body).Decode(v)
		},
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}
