package resolve

import (
	"sort"

	"mirage/utils/filter"
)

// rankCandidates stable-sorts aggregator candidates so streams tagged with the
// first enabled audio track come first. Release names are the only signal
// available, so an unmatched list keeps the provider's order.
func rankCandidates(candidates []candidate, audioTracks []string) {
	if len(candidates) < 2 || len(audioTracks) == 0 {
		return
	}
	terms := filter.AudioVariantTerms(audioTracks[0])
	if len(terms) == 0 {
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return matchesAudio(candidates[i], terms) && !matchesAudio(candidates[j], terms)
	})
}

func matchesAudio(c candidate, terms []filter.CompiledTerm) bool {
	if c.filenameHint != "" && filter.MatchesAnyTerm(c.filenameHint, terms) {
		return true
	}
	return filter.MatchesAnyTerm(c.url, terms)
}
