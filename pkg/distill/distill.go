// Package distill narrows broad retrieval recall down to the handful of
// passages worth spending payload budget on. Phase one casts a wide net per
// sub-query; phase two has the evaluation model re-score the union and keep
// only the most relevant few.
package distill

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/llm"
	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/retrieval"
)

const (
	defaultPhaseOneLimit = 50
	defaultPhaseTwoLimit = 10
)

// Retriever is the slice of the hybrid retriever distillation needs.
type Retriever interface {
	Retrieve(ctx context.Context, query retrieval.Query) ([]retrieval.Candidate, error)
}

// ChunkReader loads chunk text for phase-two scoring.
type ChunkReader interface {
	GetChunks(ctx context.Context, ids []narrative.ChunkID) ([]*narrative.Chunk, error)
}

// Config bounds the two phases.
type Config struct {
	PhaseOneLimit uint
	PhaseTwoLimit uint
}

type Distiller struct {
	retriever Retriever
	reader    ChunkReader
	call      llm.CallFunc
	phaseOne  int
	phaseTwo  int
	logger    *zap.Logger
}

func NewDistiller(cfg Config, retriever Retriever, reader ChunkReader, call llm.CallFunc, logger *zap.Logger) *Distiller {
	phaseOne := int(cfg.PhaseOneLimit)
	if phaseOne == 0 {
		phaseOne = defaultPhaseOneLimit
	}
	phaseTwo := int(cfg.PhaseTwoLimit)
	if phaseTwo == 0 {
		phaseTwo = defaultPhaseTwoLimit
	}

	return &Distiller{
		retriever: retriever,
		reader:    reader,
		call:      call,
		phaseOne:  phaseOne,
		phaseTwo:  phaseTwo,
		logger:    logger,
	}
}

// verdict is the phase-two reply shape.
type verdict struct {
	Keep []int64 `json:"keep"`
}

// Passage is a surviving chunk with the relevance it earned in phase one,
// which the budget allocator later uses to decide what to drop first.
type Passage struct {
	Chunk     *narrative.Chunk
	Relevance float64
}

// Distill runs both phases for the objective. Sub-queries share a candidate
// pool; the model may keep nothing at all. Ids the model invents are
// discarded with a warning rather than trusted. The returned passages are in
// strict chronological (ascending id) order.
func (d *Distiller) Distill(ctx context.Context, objective string, subQueries []retrieval.Query) ([]Passage, error) {
	pool := make(map[narrative.ChunkID]float64)

	for _, q := range subQueries {
		q.K = d.phaseOne
		candidates, err := d.retriever.Retrieve(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("phase one recall: %w", err)
		}
		for _, c := range candidates {
			if c.Score > pool[c.ChunkID] {
				pool[c.ChunkID] = c.Score
			}
		}
	}

	if len(pool) == 0 {
		return nil, nil
	}

	poolIDs := make([]narrative.ChunkID, 0, len(pool))
	for id := range pool {
		poolIDs = append(poolIDs, id)
	}
	sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })

	chunks, err := d.reader.GetChunks(ctx, poolIDs)
	if err != nil {
		return nil, fmt.Errorf("loading phase one chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	kept, err := d.phaseTwoKeep(ctx, objective, chunks)
	if err != nil {
		return nil, err
	}

	byID := make(map[narrative.ChunkID]*narrative.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	result := make([]Passage, 0, len(kept))
	seen := make(map[narrative.ChunkID]bool, len(kept))
	for _, id := range kept {
		chunk, ok := byID[id]
		if !ok {
			d.logger.Warn("evaluation model invented a chunk id, discarding",
				zap.Int64("chunk_id", int64(id)))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, Passage{Chunk: chunk, Relevance: pool[id]})
	}

	if len(result) > d.phaseTwo {
		result = result[:d.phaseTwo]
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Chunk.ID < result[j].Chunk.ID })
	return result, nil
}

// phaseTwoKeep asks the evaluation model which chunk ids to keep, most
// relevant first.
func (d *Distiller) phaseTwoKeep(ctx context.Context, objective string, chunks []*narrative.Chunk) ([]narrative.ChunkID, error) {
	var sb strings.Builder
	sb.WriteString("Decide which passages matter for continuing this story turn:\n")
	sb.WriteString(objective)
	sb.WriteString("\n\nPassages:\n")
	for _, chunk := range chunks {
		fmt.Fprintf(&sb, "[%d] %s\n", chunk.ID, chunk.Text)
	}
	fmt.Fprintf(&sb, "\nReply as JSON {\"keep\":[id,...]} listing at most %d ids, most relevant first. ", d.phaseTwo)
	sb.WriteString("Keep nothing if nothing matters. Only use ids shown above.")

	v, err := llm.CallStructured[verdict](ctx, d.call, sb.String())
	if err != nil {
		return nil, fmt.Errorf("phase two re-rank: %w", err)
	}

	ids := make([]narrative.ChunkID, 0, len(v.Keep))
	for _, raw := range v.Keep {
		ids = append(ids, narrative.ChunkID(raw))
	}
	return ids, nil
}

// Reorder sorts chunks into strict chronological order (ascending id) and
// drops duplicates. Applying it twice gives the same result as once.
func Reorder(chunks []*narrative.Chunk) []*narrative.Chunk {
	seen := make(map[narrative.ChunkID]bool, len(chunks))
	out := make([]*narrative.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if seen[chunk.ID] {
			continue
		}
		seen[chunk.ID] = true
		out = append(out, chunk)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
