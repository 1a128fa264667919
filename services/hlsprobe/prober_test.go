package hlsprobe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mirage/models"
)

const playlistContentType = "application/vnd.apple.mpegurl"

func vodPlaylist(durations []float64, ended bool) string {
	body := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n"
	for i, d := range durations {
		body += fmt.Sprintf("#EXTINF:%.1f,\nsegment%d.ts\n", d, i)
	}
	if ended {
		body += "#EXT-X-ENDLIST\n"
	}
	return body
}

func TestProbeSumsSegmentDurations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", playlistContentType)
		fmt.Fprint(w, vodPlaylist([]float64{10.0, 9.5, 8.0}, true))
	}))
	defer server.Close()

	p := New(server.Client())
	ticks, ok := p.ProbeDurationTicks(context.Background(), server.URL+"/index.m3u8")
	if !ok {
		t.Fatal("expected a probed duration")
	}
	want := models.TicksFromSeconds(27.5)
	if ticks != want {
		t.Errorf("expected %d ticks, got %d", want, ticks)
	}
}

func TestProbeLivePlaylistYieldsNone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", playlistContentType)
		fmt.Fprint(w, vodPlaylist([]float64{6.0, 6.0}, false))
	}))
	defer server.Close()

	p := New(server.Client())
	if _, ok := p.ProbeDurationTicks(context.Background(), server.URL+"/live.m3u8"); ok {
		t.Error("live playlist without end marker must not yield a duration")
	}
}

func TestProbeFollowsMasterPlaylistVariant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", playlistContentType)
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1920x1080\nvariants/1080p.m3u8\n")
	})
	mux.HandleFunc("/variants/1080p.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", playlistContentType)
		fmt.Fprint(w, vodPlaylist([]float64{4.0, 4.0, 2.5}, true))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := New(server.Client())
	ticks, ok := p.ProbeDurationTicks(context.Background(), server.URL+"/master.m3u8")
	if !ok {
		t.Fatal("expected a probed duration via the variant playlist")
	}
	if want := models.TicksFromSeconds(10.5); ticks != want {
		t.Errorf("expected %d ticks, got %d", want, ticks)
	}
}

func TestProbeMasterVariantResolution(t *testing.T) {
	tests := []struct {
		name    string
		variant func(serverURL string) string
	}{
		{"path relative", func(string) string { return "media/video.m3u8" }},
		{"host relative", func(string) string { return "/media/video.m3u8" }},
		{"absolute", func(serverURL string) string { return serverURL + "/media/video.m3u8" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			server := httptest.NewServer(mux)
			defer server.Close()

			mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", playlistContentType)
				fmt.Fprintf(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\n%s\n", tc.variant(server.URL))
			})
			mux.HandleFunc("/media/video.m3u8", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", playlistContentType)
				fmt.Fprint(w, vodPlaylist([]float64{5.0}, true))
			})

			p := New(server.Client())
			ticks, ok := p.ProbeDurationTicks(context.Background(), server.URL+"/master.m3u8")
			if !ok {
				t.Fatal("expected a probed duration")
			}
			if want := models.TicksFromSeconds(5.0); ticks != want {
				t.Errorf("expected %d ticks, got %d", want, ticks)
			}
		})
	}
}

func TestProbeNeverFetchesOneShotURLs(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	p := New(server.Client())
	urls := []string{
		server.URL + "/stream.m3u8?token=abc123",
		server.URL + "/stream.m3u8?Signature=xyz&Expires=1700000000",
		server.URL + "/stream.m3u8?X-Amz-Credential=key",
		server.URL + "/dl/stream.m3u8",
	}
	for _, u := range urls {
		if _, ok := p.ProbeDurationTicks(context.Background(), u); ok {
			t.Errorf("one-shot URL %q must not yield a duration", u)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("expected zero fetches for one-shot URLs, got %d", hits.Load())
	}
}

func TestProbeRejectsNonPlaylistContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", playlistContentType)
		fmt.Fprint(w, "<html>not a playlist</html>")
	}))
	defer server.Close()

	p := New(server.Client())
	if _, ok := p.ProbeDurationTicks(context.Background(), server.URL+"/bogus.m3u8"); ok {
		t.Error("non-playlist content must not yield a duration")
	}
}

func TestProbeRejectsNonPlaylistTypeAndExtension(t *testing.T) {
	var getHits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			getHits.Add(1)
		}
		w.Header().Set("Content-Type", "video/x-matroska")
	}))
	defer server.Close()

	p := New(server.Client())
	if _, ok := p.ProbeDurationTicks(context.Background(), server.URL+"/movie.mkv"); ok {
		t.Error("mkv URL must not yield a duration")
	}
	if getHits.Load() != 0 {
		t.Errorf("expected the body fetch to be skipped, got %d GETs", getHits.Load())
	}
}

func TestProbeCachesSuccess(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", playlistContentType)
		fmt.Fprint(w, vodPlaylist([]float64{12.0}, true))
	}))
	defer server.Close()

	p := New(server.Client())
	url := server.URL + "/index.m3u8"
	for i := 0; i < 3; i++ {
		if _, ok := p.ProbeDurationTicks(context.Background(), url); !ok {
			t.Fatalf("probe %d failed", i)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single body fetch, got %d", hits.Load())
	}
}

func TestProbeCachesFailureWithShortTTL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	p := New(server.Client())
	url := server.URL + "/index.m3u8"

	if _, ok := p.ProbeDurationTicks(context.Background(), url); ok {
		t.Fatal("expected failure")
	}

	entry, ok := p.cache.get(url)
	if !ok || entry.ok {
		t.Fatal("expected a cached negative result")
	}
	ttl := time.Until(entry.expiresAt)
	if ttl > failureTTL || ttl <= 0 {
		t.Errorf("negative TTL out of range: %v", ttl)
	}
}
