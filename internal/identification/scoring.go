package identification

import (
	"sort"

	"curator/internal/media"
	"curator/internal/nameparse"
	"curator/internal/textutil"
)

const (
	titleWeight    = 0.55
	yearWeight     = 0.20
	kindWeight     = 0.10
	providerWeight = 0.15
)

type scoredCandidate struct {
	Candidate
	score float64
}

// scoreCandidate combines title similarity, year proximity, kind agreement,
// and the provider's own match score into a value in [0, 1].
func scoreCandidate(parsed nameparse.Result, c Candidate) float64 {
	return titleWeight*titleScore(parsed.Title, c.Title) +
		yearWeight*yearScore(parsed.Year, c.Year) +
		kindWeight*kindScore(parsed.Kind, c.Kind) +
		providerWeight*clamp01(c.MatchScore)
}

func titleScore(query, candidate string) float64 {
	if textutil.FoldTitle(query) == "" || textutil.FoldTitle(candidate) == "" {
		return 0
	}
	if textutil.CompactTitle(query) == textutil.CompactTitle(candidate) {
		return 1
	}
	return textutil.TokenJaccard(query, candidate)
}

func yearScore(parsed, candidate int) float64 {
	if parsed == 0 {
		return 0.5
	}
	if candidate == 0 {
		return 0
	}
	switch diff := parsed - candidate; {
	case diff == 0:
		return 1
	case diff == 1 || diff == -1:
		return 0.5
	default:
		return 0
	}
}

func kindScore(parsed, candidate media.Kind) float64 {
	if !parsed.Valid() {
		return 0.5
	}
	if parsed == candidate {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// rankCandidates orders by score, then provider rank, then external ID so
// equal inputs always produce the same winner.
func rankCandidates(parsed nameparse.Result, candidates []Candidate) []scoredCandidate {
	ranked := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scoredCandidate{Candidate: c, score: scoreCandidate(parsed, c)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].Rank != ranked[j].Rank {
			return ranked[i].Rank < ranked[j].Rank
		}
		return ranked[i].ExternalID < ranked[j].ExternalID
	})
	return ranked
}
