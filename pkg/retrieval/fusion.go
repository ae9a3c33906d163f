package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/papercomputeco/chronicle/pkg/narrative"
)

// LegScores is one leg's normalized scores, keyed by chunk id.
type LegScores struct {
	Source Source
	Scores map[narrative.ChunkID]float64
}

// legWeight returns the fixed fusion weight for a leg.
func legWeight(source Source) float64 {
	switch source {
	case SourceVector:
		return weightVectorLeg
	case SourceText:
		return weightTextLeg
	case SourceStructured:
		return weightStructuredLeg
	default:
		return 0
	}
}

// FuseLegs merges per-leg scores into a single ranking. A chunk appearing in
// several legs gets the weighted sum of its leg scores. Ordering is by
// descending fused score with ties broken by ascending chunk id, so the
// result is fully deterministic. At most k candidates are returned.
func FuseLegs(legs []LegScores, k int) []Candidate {
	type contribution struct {
		source Source
		score  float64
	}

	fused := make(map[narrative.ChunkID]float64)
	contribs := make(map[narrative.ChunkID][]contribution)

	for _, leg := range legs {
		w := legWeight(leg.Source)
		for id, score := range leg.Scores {
			fused[id] += w * score
			contribs[id] = append(contribs[id], contribution{source: leg.Source, score: score})
		}
	}

	candidates := make([]Candidate, 0, len(fused))
	for id, score := range fused {
		parts := contribs[id]
		sort.Slice(parts, func(i, j int) bool {
			wi, wj := legWeight(parts[i].source)*parts[i].score, legWeight(parts[j].source)*parts[j].score
			if wi != wj {
				return wi > wj
			}
			return parts[i].source < parts[j].source
		})

		labels := make([]string, len(parts))
		for i, p := range parts {
			labels[i] = fmt.Sprintf("%s:%.3f", p.source, p.score)
		}

		candidates = append(candidates, Candidate{
			ChunkID:    id,
			Source:     parts[0].source,
			Score:      score,
			Provenance: strings.Join(labels, " + "),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates
}
