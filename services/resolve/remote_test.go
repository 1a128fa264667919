package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRemoteLookupMovie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("id"); got != "603" {
			t.Errorf("unexpected id %q", got)
		}
		if r.URL.Query().Has("season") {
			t.Error("movie lookup must not send season")
		}
		fmt.Fprint(w, `{"url":"https://cdn.example.com/matrix.mp4","filename":"matrix.mp4"}`)
	}))
	defer server.Close()

	client := NewRemoteLookupClient(server.Client(), server.URL)
	url, filename, err := client.Lookup(context.Background(), "603", 0, 0)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if url != "https://cdn.example.com/matrix.mp4" {
		t.Errorf("unexpected url %q", url)
	}
	if filename != "matrix.mp4" {
		t.Errorf("unexpected filename %q", filename)
	}
}

func TestRemoteLookupEpisodeSendsSeasonEpisode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("season") != "2" || r.URL.Query().Get("episode") != "9" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"url":"https://cdn.example.com/ep.mkv"}`)
	}))
	defer server.Close()

	client := NewRemoteLookupClient(server.Client(), server.URL)
	if _, _, err := client.Lookup(context.Background(), "1399", 2, 9); err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestRemoteLookupRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"url":"https://cdn.example.com/ok.mkv"}`)
	}))
	defer server.Close()

	client := NewRemoteLookupClient(server.Client(), server.URL)
	url, _, err := client.Lookup(context.Background(), "603", 0, 0)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if url != "https://cdn.example.com/ok.mkv" {
		t.Errorf("unexpected url %q", url)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestRemoteLookupNotFoundDoesNotRetry(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewRemoteLookupClient(server.Client(), server.URL)
	if _, _, err := client.Lookup(context.Background(), "603", 0, 0); err == nil {
		t.Fatal("expected an error")
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly 1 attempt for a 404, got %d", hits.Load())
	}
}
