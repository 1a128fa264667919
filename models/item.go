package models

import "time"

// ItemKind enumerates the catalog entry types this engine materializes.
type ItemKind string

const (
	KindMovie   ItemKind = "Movie"
	KindSeries  ItemKind = "Series"
	KindSeason  ItemKind = "Season"
	KindEpisode ItemKind = "Episode"
)

// Provider names used as keys in VirtualItem.ExternalIDs.
const (
	ProviderImdb    = "Imdb"
	ProviderTmdb    = "Tmdb"
	ProviderTvdb    = "Tvdb"
	ProviderAniList = "AniList"
)

// VirtualItem is a catalog entry with no durable host-side record. It lives in
// the ephemeral catalog cache, or is reconstructed on demand from a placeholder
// file decoded out of the host's library.
type VirtualItem struct {
	Identity       string            `json:"identity"`
	Kind           ItemKind          `json:"kind"`
	DisplayName    string            `json:"displayName"`
	ExternalIDs    map[string]string `json:"externalIds,omitempty"`
	ParentIdentity string            `json:"parentIdentity,omitempty"`
	SeriesIdentity string            `json:"seriesIdentity,omitempty"`
	SeasonIndex    int               `json:"seasonIndex,omitempty"`
	EpisodeIndex   int               `json:"episodeIndex,omitempty"`
	AbsoluteIndex  int               `json:"absoluteIndex,omitempty"`
	PremiereDate   *time.Time        `json:"premiereDate,omitempty"`
	RuntimeTicks   int64             `json:"runtimeTicks,omitempty"`

	// Variants is populated at resolution time, never at creation time.
	Variants []MediaSourceDescriptor `json:"variants,omitempty"`
}

// ExternalID returns the item's id for a provider, or "" when unknown.
func (v VirtualItem) ExternalID(provider string) string {
	if v.ExternalIDs == nil {
		return ""
	}
	return v.ExternalIDs[provider]
}

// MediaSourceDescriptor is one playable variant of a VirtualItem, e.g. a "sub"
// vs "dub" audio track or one candidate stream offered by an aggregator.
// SourceIdentity is a pure function of (parent identity, variant key) so it can
// be recomputed without any stored state.
type MediaSourceDescriptor struct {
	SourceIdentity string          `json:"sourceIdentity"`
	VariantKey     string          `json:"variantKey,omitempty"`
	URL            string          `json:"url"`
	Container      string          `json:"container,omitempty"`
	FilenameHint   string          `json:"filenameHint,omitempty"`
	RuntimeTicks   int64           `json:"runtimeTicks,omitempty"`
	SubtitleTracks []SubtitleTrack `json:"subtitleTracks,omitempty"`
}

// SubtitleTrack is a sidecar WebVTT track attached to a playback source. The
// delivery URL is derived purely from the item identity and language code so
// the subtitle-serving endpoint can locate the text later on its own.
type SubtitleTrack struct {
	Language     string `json:"language"`
	LanguageCode string `json:"languageCode"`
	DeliveryURL  string `json:"deliveryUrl"`
}

// PersistedItem is the host library's durable record of a placeholder-backed
// item. PlaceholderURI carries the raw contents of the placeholder file; the
// resolution engine decodes it to rebuild an equivalent VirtualItem.
type PersistedItem struct {
	Identity       string
	Name           string
	Kind           ItemKind
	PlaceholderURI string
	ExternalIDs    map[string]string
	SeasonIndex    int
	EpisodeIndex   int
	PremiereDate   *time.Time
	RuntimeTicks   int64
}
