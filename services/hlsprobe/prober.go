// Package hlsprobe recovers the total duration of a stream by fetching and
// parsing its HLS manifest, when the upstream API did not supply one. Probing
// is strictly best effort: any failure is a negative result, never an error
// the caller has to handle.
package hlsprobe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"

	"mirage/models"
)

// maxPlaylistBytes bounds how much manifest we are willing to read.
const maxPlaylistBytes = 4 << 20

// oneShotMarkers are URL substrings suggesting a signed, expiring, or
// one-time-use link. Fetching such a URL may consume or invalidate it before
// the player gets to use it, so we never probe them.
var oneShotMarkers = []string{
	"token",
	"signature",
	"sig=",
	"expires=",
	"expiry",
	"policy=",
	"x-amz-",
	"x-goog-",
	"/dl/",
	"download_key",
	"one_time",
}

var playlistContentTypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"audio/mpegurl",
	"audio/x-mpegurl",
}

// Prober probes HLS manifests for durations. Safe for concurrent use;
// concurrent probes of the same URL are collapsed into one fetch.
type Prober struct {
	client *http.Client
	cache  *durationCache
	group  singleflight.Group
}

// New constructs a prober. A nil client gets a sane default.
func New(client *http.Client) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Prober{
		client: client,
		cache:  newDurationCache(),
	}
}

// ProbeDurationTicks returns the total duration of the playlist at rawURL in
// ticks, or false when the duration is unknown. Unsafe-looking URLs are
// rejected without any network access, and negative results are cached with a
// short TTL so an upstream outage is retried soon.
func (p *Prober) ProbeDurationTicks(ctx context.Context, rawURL string) (int64, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return 0, false
	}
	if marker, unsafe := looksOneShot(rawURL); unsafe {
		log.Printf("[hlsprobe] skipping probe, URL carries %q marker", marker)
		return 0, false
	}

	if cached, ok := p.cache.get(rawURL); ok {
		return cached.ticks, cached.ok
	}

	v, err, _ := p.group.Do(rawURL, func() (any, error) {
		ticks, err := p.probe(ctx, rawURL)
		if err != nil {
			log.Printf("[hlsprobe] probe failed for %s: %v", rawURL, err)
			p.cache.putFailure(rawURL)
			return int64(0), err
		}
		p.cache.putSuccess(rawURL, ticks)
		return ticks, nil
	})
	if err != nil {
		return 0, false
	}
	return v.(int64), true
}

// Cleanup drops expired cache entries.
func (p *Prober) Cleanup() {
	p.cache.cleanup()
}

func (p *Prober) probe(ctx context.Context, rawURL string) (int64, error) {
	if err := p.checkLooksLikePlaylist(ctx, rawURL); err != nil {
		return 0, err
	}

	body, err := p.fetch(ctx, rawURL)
	if err != nil {
		return 0, err
	}

	pl, err := parsePlaylist(body)
	if err != nil {
		return 0, err
	}

	// A master playlist carries no segments itself; hop to its first variant.
	if pl.variantURI != "" {
		variantURL, err := resolveVariantURL(rawURL, pl.variantURI)
		if err != nil {
			return 0, fmt.Errorf("resolve variant url: %w", err)
		}
		body, err = p.fetch(ctx, variantURL)
		if err != nil {
			return 0, err
		}
		pl, err = parsePlaylist(body)
		if err != nil {
			return 0, err
		}
	}

	// An unterminated playlist is live: its duration is unbounded by
	// construction, not unknown-yet.
	if !pl.ended {
		return 0, fmt.Errorf("playlist has no end marker")
	}
	if pl.totalSeconds <= 0 {
		return 0, fmt.Errorf("playlist has no segment durations")
	}

	ticks := models.TicksFromSeconds(pl.totalSeconds)
	log.Printf("[hlsprobe] probed %s: %.1fs", rawURL, pl.totalSeconds)
	return ticks, nil
}

// checkLooksLikePlaylist issues a HEAD request and rejects URLs whose declared
// content type and extension both fail to indicate an HLS manifest.
func (p *Prober) checkLooksLikePlaylist(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build head request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("head request: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("head request returned %d", resp.StatusCode)
	}

	if hasPlaylistContentType(resp.Header.Get("Content-Type")) || hasPlaylistExtension(rawURL) {
		return nil
	}
	return fmt.Errorf("neither content type nor extension indicate a playlist")
}

func (p *Prober) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch playlist returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return "", fmt.Errorf("read playlist: %w", err)
	}
	return string(data), nil
}

type playlist struct {
	variantURI   string
	ended        bool
	totalSeconds float64
}

// parsePlaylist validates and parses an HLS manifest. The content must carry
// the #EXTM3U header and at least one recognized directive; anything else is
// not actually a playlist and we do not guess.
func parsePlaylist(body string) (playlist, error) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "#EXTM3U") {
		return playlist{}, fmt.Errorf("missing #EXTM3U header")
	}
	if mt := mimetype.Detect([]byte(trimmed)); !mt.Is("application/vnd.apple.mpegurl") && !mt.Is("audio/x-mpegurl") {
		return playlist{}, fmt.Errorf("content does not sniff as a playlist (%s)", mt)
	}

	var (
		pl           playlist
		sawDirective bool
		wantVariant  bool
	)

	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 64*1024), maxPlaylistBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			sawDirective = true
			wantVariant = pl.variantURI == ""
		case strings.HasPrefix(line, "#EXTINF:"):
			sawDirective = true
			pl.totalSeconds += parseSegmentDuration(line)
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			sawDirective = true
			pl.ended = true
		case strings.HasPrefix(line, "#EXT-X-"):
			sawDirective = true
		case strings.HasPrefix(line, "#"):
			// comment
		default:
			if wantVariant {
				pl.variantURI = line
				wantVariant = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return playlist{}, fmt.Errorf("scan playlist: %w", err)
	}
	if !sawDirective {
		return playlist{}, fmt.Errorf("no playlist directives found")
	}
	return pl, nil
}

// parseSegmentDuration extracts the seconds value from "#EXTINF:10.5,title".
func parseSegmentDuration(line string) float64 {
	payload := strings.TrimPrefix(line, "#EXTINF:")
	if idx := strings.IndexByte(payload, ','); idx != -1 {
		payload = payload[:idx]
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// resolveVariantURL resolves a variant reference against the master playlist
// URL, handling absolute, host-relative, and path-relative forms.
func resolveVariantURL(masterURL, variantURI string) (string, error) {
	base, err := url.Parse(masterURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(variantURI)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func looksOneShot(rawURL string) (string, bool) {
	lowered := strings.ToLower(rawURL)
	for _, marker := range oneShotMarkers {
		if strings.Contains(lowered, marker) {
			return marker, true
		}
	}
	return "", false
}

func hasPlaylistContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(contentType, ';'); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	for _, ct := range playlistContentTypes {
		if contentType == ct {
			return true
		}
	}
	return false
}

func hasPlaylistExtension(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	return ext == ".m3u8" || ext == ".m3u"
}
