package models

// ResolveRequest is the typed inbound request for playback resolution. Variant
// is an optional previously-issued source identity; the transport layer is
// responsible for populating it, the engine never digs it out of a raw body.
type ResolveRequest struct {
	Identity string `json:"identity"`
	Variant  string `json:"variant,omitempty"`
}

// PlaybackSource is one playable candidate in a playback response.
type PlaybackSource struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	URL                  string          `json:"url"`
	Container            string          `json:"container"`
	IsRemote             bool            `json:"isRemote"`
	SupportsDirectPlay   bool            `json:"supportsDirectPlay"`
	SupportsDirectStream bool            `json:"supportsDirectStream"`
	RuntimeTicks         int64           `json:"runtimeTicks"`
	Bitrate              int64           `json:"bitrate,omitempty"`
	SubtitleTracks       []SubtitleTrack `json:"subtitleTracks,omitempty"`
}

// PlaybackResponse is the structure handed to the player: one entry per
// surviving candidate plus a session id for progress tracking.
type PlaybackResponse struct {
	Sources       []PlaybackSource `json:"sources"`
	PlaySessionID string           `json:"playSessionId"`
}
