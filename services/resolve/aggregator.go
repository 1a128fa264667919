package resolve

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mirage/utils"
)

// AggregatorClient queries a Stremio-style addon endpoint that returns many
// candidate streams per title.
type AggregatorClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAggregatorClient constructs a client. The base URL may carry a trailing
// /manifest.json (users paste addon manifests); it is stripped.
func NewAggregatorClient(client *http.Client, baseURL string) *AggregatorClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/manifest.json")
	return &AggregatorClient{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 4),
	}
}

// AggregatedStream is one candidate offered by the aggregator.
type AggregatedStream struct {
	URL          string
	FilenameHint string
}

type addonStreamsResponse struct {
	Streams []struct {
		Name          string `json:"name"`
		Title         string `json:"title"`
		URL           string `json:"url"`
		BehaviorHints struct {
			Filename string `json:"filename"`
		} `json:"behaviorHints"`
	} `json:"streams"`
}

// Streams fetches the candidate list for an IMDB-style id. Season/episode are
// 0 for movies. Streams without a direct URL (bare torrent descriptors) are
// skipped: this engine hands players URLs, it is not a torrent client.
func (c *AggregatorClient) Streams(ctx context.Context, imdbID string, season, episode int) ([]AggregatedStream, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("aggregator URL not configured")
	}
	imdbID = strings.ToLower(strings.TrimSpace(imdbID))
	if imdbID == "" {
		return nil, fmt.Errorf("aggregator requires an imdb id")
	}
	if !strings.HasPrefix(imdbID, "tt") {
		imdbID = "tt" + imdbID
	}

	contentType := "movie"
	streamID := imdbID
	if season > 0 && episode > 0 {
		contentType = "series"
		streamID = fmt.Sprintf("%s:%d:%d", imdbID, season, episode)
	}
	endpoint := fmt.Sprintf("%s/stream/%s/%s.json", c.baseURL, contentType, streamID)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build aggregator request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aggregator request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("aggregator returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read aggregator response: %w", err)
	}

	var payload addonStreamsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode aggregator response: %w", err)
	}

	results := make([]AggregatedStream, 0, len(payload.Streams))
	seen := make(map[string]struct{})
	for _, stream := range payload.Streams {
		streamURL := strings.TrimSpace(stream.URL)
		if streamURL == "" {
			continue
		}
		if err := utils.ValidateMediaURL(streamURL); err != nil {
			log.Printf("[aggregator] dropping stream %q: %v", stream.Name, err)
			continue
		}
		// Some aggregators hand back URLs with raw spaces in the path.
		if encoded, err := utils.EncodeURLWithSpaces(streamURL); err == nil {
			streamURL = encoded
		}
		if _, dup := seen[streamURL]; dup {
			continue
		}
		seen[streamURL] = struct{}{}

		hint := strings.TrimSpace(stream.BehaviorHints.Filename)
		if hint == "" {
			hint = strings.TrimSpace(stream.Title)
		}
		results = append(results, AggregatedStream{URL: streamURL, FilenameHint: hint})
	}

	log.Printf("[aggregator] %s returned %d usable streams (of %d)", streamID, len(results), len(payload.Streams))
	return results, nil
}

// streamVariantKey derives the stable variant discriminator for an aggregated
// stream. Keyed off the URL so re-querying the aggregator yields the same
// source identities while the stream list is stable, regardless of ordering.
func streamVariantKey(streamURL string) string {
	sum := md5.Sum([]byte(streamURL))
	return "s-" + hex.EncodeToString(sum[:6])
}
