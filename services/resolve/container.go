package resolve

import (
	"net/url"
	"path"
	"strings"
)

// ContainerHLS is the container reported for segmented playlists. Playlist
// sources seek natively by segment, so they never get a bitrate estimate.
const ContainerHLS = "hls"

// containerDefault is what opaque debrid/aggregator links fall back to. The
// playback layer can still attempt direct play without pre-declared stream
// metadata.
const containerDefault = "mkv"

// knownContainers maps a file extension (without dot, lowercased) to the
// container family reported to the player.
var knownContainers = map[string]string{
	"m3u8": ContainerHLS,
	"m3u":  ContainerHLS,
	"mp4":  "mp4",
	"m4v":  "mp4",
	"mkv":  "mkv",
	"webm": "webm",
	"avi":  "avi",
	"mov":  "mov",
	"ts":   "ts",
	"flv":  "flv",
	"wmv":  "wmv",
	"mpg":  "mpeg",
	"mpeg": "mpeg",
	"ogv":  "ogg",
}

// ClassifyContainer maps a candidate URL plus an optional filename hint to a
// container family. Precedence, first match wins:
//
//  1. a playlist extension on the URL path, regardless of the hint (a hint
//     claiming otherwise is stale or untrusted)
//  2. a recognized extension on the filename hint
//  3. a recognized extension on the URL path
//  4. the generic binary fallback
func ClassifyContainer(rawURL, filenameHint string) string {
	urlExt := urlPathExtension(rawURL)
	if knownContainers[urlExt] == ContainerHLS {
		return ContainerHLS
	}

	if hintExt := extensionOf(filenameHint); hintExt != "" {
		if container, ok := knownContainers[hintExt]; ok {
			return container
		}
	}

	if container, ok := knownContainers[urlExt]; ok {
		return container
	}
	return containerDefault
}

func urlPathExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return extensionOf(rawURL)
	}
	return extensionOf(parsed.Path)
}

func extensionOf(name string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(name)))
	return strings.TrimPrefix(ext, ".")
}
