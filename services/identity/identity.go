// Package identity derives the stable opaque identifiers used for virtual
// catalog entries and their playable variants, and encodes/decodes the
// placeholder URI written into placeholder files by the library persister.
//
// Identities are 128-bit digests of a salted string, so two independent code
// paths (ephemeral cache and filesystem placeholders) derive the same id for
// the same external record without coordination, across restarts.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// saltPrefix keeps derived identities out of any id space the host generates
// for real records.
const saltPrefix = "mirage"

// Scheme is the placeholder URI scheme.
const Scheme = "mirage"

// Placeholder kinds. These name the addressing shape of the external key, not
// the host's item type: tv and anime keys carry season/episode segments.
const (
	PlaceholderMovie = "movie"
	PlaceholderTV    = "tv"
	PlaceholderAnime = "anime"
)

// ItemID derives the identity for an external catalog record. Deterministic:
// the same (namespace, externalKey) always yields the same identity.
func ItemID(namespace, externalKey string) string {
	sum := md5.Sum([]byte(saltPrefix + ":" + namespace + ":" + externalKey))
	return hex.EncodeToString(sum[:])
}

// VariantID derives the identity of one playable variant of an item. An empty
// variant key returns the parent identity unchanged, so the single-variant
// case is indistinguishable from the item itself.
func VariantID(parentIdentity, variantKey string) string {
	if variantKey == "" {
		return parentIdentity
	}
	sum := md5.Sum([]byte(parentIdentity + ":" + strings.ToLower(variantKey)))
	return hex.EncodeToString(sum[:])
}

// Placeholder is the decoded form of a placeholder URI:
//
//	mirage://movie/{key}[/{audio}]
//	mirage://tv/{key}/{season}/{episode}[/{audio}]
//	mirage://anime/{key}/{season}/{episode}[/{audio}]
type Placeholder struct {
	Kind        string
	ExternalKey string
	Season      int
	Episode     int
	AudioTrack  string
}

// Episodic reports whether the placeholder addresses a single episode.
func (p Placeholder) Episodic() bool {
	return p.Kind == PlaceholderTV || p.Kind == PlaceholderAnime
}

// EncodePlaceholderURI renders a placeholder to its URI form. It is the single
// source of truth for the format: the persister writes this string into the
// placeholder file, and DecodePlaceholderURI reads it back at playback time.
func EncodePlaceholderURI(p Placeholder) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://")
	b.WriteString(p.Kind)
	b.WriteByte('/')
	b.WriteString(p.ExternalKey)
	if p.Episodic() {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(p.Season))
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(p.Episode))
	}
	if p.AudioTrack != "" {
		b.WriteByte('/')
		b.WriteString(p.AudioTrack)
	}
	return b.String()
}

// DecodePlaceholderURI parses a placeholder URI. A false result means the
// input is not a placeholder; callers fall through to the host's native
// handling, this never surfaces an error.
func DecodePlaceholderURI(raw string) (Placeholder, bool) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, Scheme+"://")
	if !ok {
		return Placeholder{}, false
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Placeholder{}, false
	}

	p := Placeholder{Kind: parts[0], ExternalKey: parts[1]}
	extras := parts[2:]

	switch p.Kind {
	case PlaceholderMovie:
		switch len(extras) {
		case 0:
		case 1:
			if extras[0] == "" {
				return Placeholder{}, false
			}
			p.AudioTrack = extras[0]
		default:
			return Placeholder{}, false
		}
	case PlaceholderTV, PlaceholderAnime:
		if len(extras) < 2 || len(extras) > 3 {
			return Placeholder{}, false
		}
		season, err := strconv.Atoi(extras[0])
		if err != nil || season < 0 {
			return Placeholder{}, false
		}
		episode, err := strconv.Atoi(extras[1])
		if err != nil || episode < 0 {
			return Placeholder{}, false
		}
		p.Season, p.Episode = season, episode
		if len(extras) == 3 {
			if extras[2] == "" {
				return Placeholder{}, false
			}
			p.AudioTrack = extras[2]
		}
	default:
		return Placeholder{}, false
	}

	return p, true
}
