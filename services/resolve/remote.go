package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// RemoteLookupClient calls a single-result external stream-lookup endpoint
// keyed by an external id (+ season/episode for episodic content).
type RemoteLookupClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteLookupClient constructs a client. A nil http client gets a sane
// default.
func NewRemoteLookupClient(client *http.Client, baseURL string) *RemoteLookupClient {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RemoteLookupClient{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

type remoteLookupResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// Lookup resolves a stream URL for the given id. Season and episode are 0 for
// movies. Transient upstream failures are retried twice before giving up.
func (c *RemoteLookupClient) Lookup(ctx context.Context, id string, season, episode int) (string, string, error) {
	if c.baseURL == "" {
		return "", "", fmt.Errorf("remote lookup URL not configured")
	}

	query := url.Values{}
	query.Set("id", id)
	if season > 0 || episode > 0 {
		query.Set("season", strconv.Itoa(season))
		query.Set("episode", strconv.Itoa(episode))
	}
	endpoint := c.baseURL + "/stream?" + query.Encode()

	var payload remoteLookupResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(fmt.Errorf("no stream for id %s", id))
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("remote lookup returned %d", resp.StatusCode)
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode remote lookup response: %w", err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", "", fmt.Errorf("remote lookup %s: %w", id, err)
	}
	if strings.TrimSpace(payload.URL) == "" {
		return "", "", fmt.Errorf("remote lookup %s: empty stream url", id)
	}
	return payload.URL, payload.Filename, nil
}
