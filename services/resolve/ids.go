package resolve

import (
	"strings"

	"mirage/models"
)

// Fallback provider orders used when the configuration does not supply one.
var (
	defaultMovieIDOrder   = []string{models.ProviderTmdb, models.ProviderImdb, models.ProviderTvdb}
	defaultEpisodeIDOrder = []string{models.ProviderAniList, models.ProviderTvdb, models.ProviderTmdb, models.ProviderImdb}
)

// resolvedID is the external id chosen for URL substitution.
type resolvedID struct {
	Provider string
	Value    string
}

// preferredID walks the configured provider order and returns the first id
// available. For episodes the series' ids are authoritative: aggregator-level
// episode identifiers are frequently one-off values rather than the series'
// canonical id, so an episode-level id of the same provider never wins over
// the series id, and an episode-level IMDB id is never used at all.
func preferredID(order []string, item models.VirtualItem, series *models.VirtualItem) (resolvedID, bool) {
	episodic := item.Kind == models.KindEpisode
	if len(order) == 0 {
		if episodic {
			order = defaultEpisodeIDOrder
		} else {
			order = defaultMovieIDOrder
		}
	}

	for _, provider := range order {
		provider = canonicalProvider(provider)
		if provider == "" {
			continue
		}

		if episodic {
			if series != nil {
				if id := series.ExternalID(provider); id != "" {
					return resolvedID{Provider: provider, Value: id}, true
				}
			}
			if provider == models.ProviderImdb {
				continue
			}
		}
		if id := item.ExternalID(provider); id != "" {
			return resolvedID{Provider: provider, Value: id}, true
		}
	}
	return resolvedID{}, false
}

// canonicalProvider normalizes a configured provider name to the casing used
// as ExternalIDs keys.
func canonicalProvider(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "imdb":
		return models.ProviderImdb
	case "tmdb":
		return models.ProviderTmdb
	case "tvdb":
		return models.ProviderTvdb
	case "anilist":
		return models.ProviderAniList
	default:
		return ""
	}
}

// imdbID returns the IMDB id usable for aggregator queries: for episodes only
// the series-level id counts.
func imdbID(item models.VirtualItem, series *models.VirtualItem) string {
	if item.Kind == models.KindEpisode {
		if series == nil {
			return ""
		}
		return series.ExternalID(models.ProviderImdb)
	}
	return item.ExternalID(models.ProviderImdb)
}
