package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"

	"mirage/config"
	"mirage/models"
)

// buildDirectCandidates renders the configured URL template once per enabled
// audio track. An empty audio track list yields a single no-variant candidate.
func buildDirectCandidates(settings config.Settings, item models.VirtualItem, series *models.VirtualItem) ([]candidate, error) {
	tmpl := settings.Streaming.MovieTemplate
	order := settings.Streaming.PreferredIDs.Movie
	if item.Kind == models.KindEpisode {
		tmpl = settings.Streaming.EpisodeTemplate
		order = settings.Streaming.PreferredIDs.Episode
	}
	if strings.TrimSpace(tmpl) == "" {
		return nil, fmt.Errorf("no direct URL template configured for %s", item.Kind)
	}

	preferred, ok := preferredID(order, item, series)
	if !ok {
		return nil, fmt.Errorf("no usable external id for %s %q", item.Kind, item.Identity)
	}

	tracks := settings.Streaming.AudioTracks
	if len(tracks) == 0 {
		tracks = []string{""}
	}

	candidates := make([]candidate, 0, len(tracks))
	for _, track := range tracks {
		track = strings.ToLower(strings.TrimSpace(track))
		candidates = append(candidates, candidate{
			variantKey: track,
			url:        expandTemplate(tmpl, item, series, preferred, track),
		})
	}
	return candidates, nil
}

// expandTemplate substitutes the supported placeholders. Unknown placeholders
// are left untouched so a misconfigured template is visible in logs rather
// than silently collapsing.
func expandTemplate(tmpl string, item models.VirtualItem, series *models.VirtualItem, preferred resolvedID, audio string) string {
	ids := func(provider string) string {
		if item.Kind == models.KindEpisode {
			if series == nil {
				return ""
			}
			return series.ExternalID(provider)
		}
		return item.ExternalID(provider)
	}

	title := item.DisplayName
	if series != nil && series.DisplayName != "" {
		title = series.DisplayName
	}

	replacer := strings.NewReplacer(
		"{id}", preferred.Value,
		"{imdb}", ids(models.ProviderImdb),
		"{tmdb}", ids(models.ProviderTmdb),
		"{tvdb}", ids(models.ProviderTvdb),
		"{anilist}", ids(models.ProviderAniList),
		"{season}", strconv.Itoa(item.SeasonIndex),
		"{episode}", strconv.Itoa(item.EpisodeIndex),
		"{absolute}", strconv.Itoa(item.AbsoluteIndex),
		"{audio}", audio,
		"{title}", titleSlug(title),
	)
	return replacer.Replace(tmpl)
}

// titleSlug renders a display name into a URL-safe slug: transliterated to
// ASCII, lowercased, runs of non-alphanumerics collapsed to single dashes.
func titleSlug(title string) string {
	ascii := strings.ToLower(unidecode.Unidecode(title))
	var b strings.Builder
	dash := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
