package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"

	"mirage/models"
)

const maxVTTBytes = 4 << 20

// HTTPFetcher fetches WebVTT documents from a subtitle provider speaking a
// simple query protocol: GET /languages?item= lists codes, GET /fetch?item=
// &lang= returns a body.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPFetcher(client *http.Client, baseURL string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

func (f *HTTPFetcher) Languages(ctx context.Context, item models.VirtualItem) ([]string, error) {
	endpoint := f.baseURL + "/languages?item=" + url.QueryEscape(item.Identity)
	var codes []string
	err := f.getJSON(ctx, endpoint, &codes)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, item models.VirtualItem, langCode string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/fetch?item=%s&lang=%s",
		f.baseURL, url.QueryEscape(item.Identity), url.QueryEscape(langCode))

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := f.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(fmt.Errorf("no subtitles for %s/%s", item.Identity, langCode))
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("subtitle provider returned %d", resp.StatusCode)
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxVTTBytes))
			return err
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *HTTPFetcher) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("subtitle provider returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
