package budget

import (
	"sort"

	"github.com/papercomputeco/chronicle/pkg/narrative"
)

// ScoredChunk pairs a distilled chunk with its relevance score.
type ScoredChunk struct {
	Chunk     *narrative.Chunk
	Relevance float64
}

// SelectPassages fits distilled passages into the token budget by shedding
// the least relevant passage until the rest fits, so the survivors are
// always the top of the relevance ranking. Chunks are atomic: a passage is
// dropped whole, never split. The survivors come back in chronological
// (ascending id) order.
func (a *Allocator) SelectPassages(passages []ScoredChunk, budgetTokens int) []*narrative.Chunk {
	if budgetTokens <= 0 || len(passages) == 0 {
		return nil
	}

	// Most relevant first; equal relevance keeps the newer chunk
	// droppable first so the outcome is deterministic.
	ranked := make([]ScoredChunk, len(passages))
	copy(ranked, passages)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Chunk.ID < ranked[j].Chunk.ID
	})

	costs := make([]int, len(ranked))
	total := 0
	for i, sc := range ranked {
		costs[i] = a.counter.Count(sc.Chunk.Text)
		total += costs[i]
	}

	for total > budgetTokens && len(ranked) > 0 {
		total -= costs[len(ranked)-1]
		ranked = ranked[:len(ranked)-1]
	}

	kept := make([]*narrative.Chunk, len(ranked))
	for i, sc := range ranked {
		kept[i] = sc.Chunk
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return kept
}

// WarmSlice accumulates chunks backward from the newest finalized chunk
// until the budget is exhausted. Chunks are atomic; the first chunk that
// does not fit whole stops the walk. Input is newest-first (as returned by
// the store's tail read); output is chronological.
func (a *Allocator) WarmSlice(newestFirst []*narrative.Chunk, budgetTokens int) []*narrative.Chunk {
	if budgetTokens <= 0 {
		return nil
	}

	remaining := budgetTokens
	kept := make([]*narrative.Chunk, 0, len(newestFirst))
	for _, chunk := range newestFirst {
		cost := a.counter.Count(chunk.Text)
		if cost > remaining {
			break
		}
		remaining -= cost
		kept = append(kept, chunk)
	}

	// Reverse into chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
