package resolve

import "testing"

func TestRankCandidatesPrefersTaggedReleases(t *testing.T) {
	candidates := []candidate{
		{url: "https://cdn.example.com/1", filenameHint: "Show - 1090 [1080p].mkv"},
		{url: "https://cdn.example.com/2", filenameHint: "Show - 1090 English Dubbed [1080p].mkv"},
		{url: "https://cdn.example.com/3", filenameHint: "Show - 1090 [720p].mkv"},
	}
	rankCandidates(candidates, []string{"dub", "sub"})

	if candidates[0].url != "https://cdn.example.com/2" {
		t.Fatalf("expected the dubbed release first, got %q", candidates[0].filenameHint)
	}
	// Unmatched entries keep their relative order.
	if candidates[1].url != "https://cdn.example.com/1" || candidates[2].url != "https://cdn.example.com/3" {
		t.Errorf("unexpected tail order: %q, %q", candidates[1].url, candidates[2].url)
	}
}

func TestRankCandidatesNoTracksKeepsOrder(t *testing.T) {
	candidates := []candidate{
		{url: "a", filenameHint: "English Dubbed"},
		{url: "b"},
	}
	rankCandidates(candidates, nil)
	if candidates[0].url != "a" {
		t.Error("order changed without configured audio tracks")
	}
}

func TestRankCandidatesUnknownTrackKeepsOrder(t *testing.T) {
	candidates := []candidate{
		{url: "a"},
		{url: "b", filenameHint: "English Dubbed"},
	}
	rankCandidates(candidates, []string{"commentary"})
	if candidates[0].url != "a" {
		t.Error("order changed for an unknown track key")
	}
}
