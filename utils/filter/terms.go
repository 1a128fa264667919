// Package filter matches release names against configurable term lists, used
// to rank aggregator streams against the enabled audio tracks.
package filter

import (
	"regexp"
	"strings"
)

// CompiledTerm holds either a plain substring or a compiled regex for matching.
type CompiledTerm struct {
	plain string         // lowercased substring (used when regex is nil)
	regex *regexp.Regexp // compiled regex (nil for plain terms)
}

// CompileTerms pre-compiles a list of term strings. Terms wrapped in /slashes/
// are treated as case-insensitive regex; an invalid regex falls back to a plain
// substring match on the whole string, slashes included. Empty terms are
// skipped.
func CompileTerms(terms []string) []CompiledTerm {
	compiled := make([]CompiledTerm, 0, len(terms))
	for _, raw := range terms {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		if len(trimmed) >= 3 && trimmed[0] == '/' && trimmed[len(trimmed)-1] == '/' {
			pattern := trimmed[1 : len(trimmed)-1]
			re, err := regexp.Compile("(?i)" + pattern)
			if err == nil {
				compiled = append(compiled, CompiledTerm{regex: re})
				continue
			}
		}

		compiled = append(compiled, CompiledTerm{plain: strings.ToLower(trimmed)})
	}
	return compiled
}

// MatchesAnyTerm reports whether the title matches any of the compiled terms.
// Empty term lists match nothing.
func MatchesAnyTerm(title string, terms []CompiledTerm) bool {
	if len(terms) == 0 {
		return false
	}
	titleLower := strings.ToLower(title)
	for _, t := range terms {
		if t.regex != nil {
			if t.regex.MatchString(title) {
				return true
			}
		} else {
			if strings.Contains(titleLower, t.plain) {
				return true
			}
		}
	}
	return false
}

// audioVariantTerms maps an audio-track key to release-name terms indicating
// that a stream carries that track. Release names are messy; substring hits
// plus a few bracket-tag regexes cover the common tagging conventions.
var audioVariantTerms = map[string][]string{
	"dub": {
		"dual audio", "dual-audio", "multi audio", "multi-audio",
		"english dub", "english dubbed", "english-dub", "dubbed",
		`/\[ENG\]/`, `/\bEN-US\b/`,
	},
	"sub": {
		"subbed", "english sub", "english subbed", "english-sub",
		`/\braw\b/`, `/\bjpn\b/`,
	},
}

// AudioVariantTerms returns compiled matching terms for an audio-track key.
// Unknown keys return nil.
func AudioVariantTerms(track string) []CompiledTerm {
	terms, ok := audioVariantTerms[strings.ToLower(strings.TrimSpace(track))]
	if !ok {
		return nil
	}
	return CompileTerms(terms)
}
