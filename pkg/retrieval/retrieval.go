// Package retrieval implements the hybrid retriever: vector, full-text, and
// structured legs run in parallel and their candidates are fused into a
// single deterministic ranking.
package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/embeddings"
	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

// Source identifies the retrieval leg a candidate came from.
type Source string

const (
	SourceVector     Source = "vector"
	SourceText       Source = "text"
	SourceStructured Source = "structured"
)

// Leg weights in the fused score. Fixed so rankings are reproducible across
// runs with the same stores.
const (
	weightVectorLeg     = 0.5
	weightTextLeg       = 0.3
	weightStructuredLeg = 0.2

	// Structured-leg scores for the two canned template strengths.
	scoreDirectMention = 1.0
	scoreNeighborhood  = 0.5
)

// Candidate is one scored chunk in the fused result. Source names the
// strongest contributing leg; Provenance records every contribution.
type Candidate struct {
	ChunkID    narrative.ChunkID
	Source     Source
	Score      float64
	Provenance string
}

// Query is a retrieval request. Entities carries already-resolved entity
// ids for the structured leg; empty disables it.
type Query struct {
	Text     string
	Entities []int64
	K        int
}

// Space binds one embedding model to its vector store and fusion weight.
type Space struct {
	ModelID  string
	Weight   float64
	Embedder embeddings.Embedder
	Store    vector.Driver
}

// Retriever fans a query across all legs.
type Retriever struct {
	store  storage.Driver
	spaces []Space
	logger *zap.Logger
}

func NewRetriever(store storage.Driver, spaces []Space, logger *zap.Logger) *Retriever {
	return &Retriever{
		store:  store,
		spaces: spaces,
		logger: logger,
	}
}

// legResult carries one leg's scored chunks back to the fusion step.
// Scores are normalized to [0,1] within the leg.
type legResult struct {
	source Source
	scores map[narrative.ChunkID]float64
	err    error
}

// Retrieve runs all legs in parallel and fuses their candidates. A down
// embedding space degrades the vector leg (weights renormalized over the
// survivors); an unreachable relational store fails the whole call.
func (r *Retriever) Retrieve(ctx context.Context, query Query) ([]Candidate, error) {
	if query.K <= 0 {
		query.K = 10
	}

	// Each leg sends exactly one result, spaces notwithstanding.
	results := make(chan legResult, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.textLeg(ctx, query, results)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.structuredLeg(ctx, query, results)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.vectorLeg(ctx, query, results)
	}()

	wg.Wait()
	close(results)

	legs := make([]LegScores, 0, 3)
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		legs = append(legs, LegScores{Source: res.source, Scores: res.scores})
	}

	return FuseLegs(legs, query.K), nil
}

// vectorLeg embeds the query under every configured space and queries each
// space's store. Per-space scores are min-max normalized, then combined with
// the spaces' fixed weights; weights of unavailable spaces are renormalized
// over the survivors so the leg never reports zero-filled scores.
func (r *Retriever) vectorLeg(ctx context.Context, query Query, out chan<- legResult) {
	type spaceHit struct {
		modelID string
		scores  map[narrative.ChunkID]float64
	}

	hits := make([]spaceHit, 0, len(r.spaces))
	weights := make(map[string]float64, len(r.spaces))
	available := make(map[string]bool, len(r.spaces))

	for _, space := range r.spaces {
		weights[space.ModelID] = space.Weight

		embedding, err := space.Embedder.Embed(ctx, query.Text)
		if err != nil {
			r.logger.Warn("embedding space unavailable, renormalizing weights",
				zap.String("model", space.ModelID),
				zap.Error(err))
			continue
		}

		docs, err := space.Store.Query(ctx, embedding, query.K)
		if err != nil {
			r.logger.Warn("vector store unavailable, renormalizing weights",
				zap.String("model", space.ModelID),
				zap.Error(err))
			continue
		}

		scores := make(map[narrative.ChunkID]float64, len(docs))
		for _, doc := range docs {
			scores[doc.ChunkID] = doc.Score
		}
		normalizeInPlace(scores)

		available[space.ModelID] = true
		hits = append(hits, spaceHit{modelID: space.ModelID, scores: scores})
	}

	if len(hits) == 0 {
		// Every space down: leg contributes nothing, non-fatal.
		out <- legResult{source: SourceVector, scores: nil}
		return
	}

	effective := Renormalize(weights, available)

	combined := make(map[narrative.ChunkID]float64)
	for _, hit := range hits {
		w := effective[hit.modelID]
		for id, score := range hit.scores {
			combined[id] += w * score
		}
	}

	out <- legResult{source: SourceVector, scores: combined}
}

func (r *Retriever) textLeg(ctx context.Context, query Query, out chan<- legResult) {
	hits, err := r.store.SearchText(ctx, query.Text, query.K)
	if err != nil {
		out <- legResult{source: SourceText, err: fmt.Errorf("text leg: %w", err)}
		return
	}

	scores := make(map[narrative.ChunkID]float64, len(hits))
	for _, hit := range hits {
		scores[hit.ChunkID] = hit.Score
	}

	out <- legResult{source: SourceText, scores: scores}
}

// structuredLeg runs the canned relational templates: chunks directly
// referencing a resolved entity, then chunks referencing its relationship
// neighborhood.
func (r *Retriever) structuredLeg(ctx context.Context, query Query, out chan<- legResult) {
	if len(query.Entities) == 0 {
		out <- legResult{source: SourceStructured, scores: nil}
		return
	}

	scores := make(map[narrative.ChunkID]float64)

	for _, entityID := range query.Entities {
		direct, err := r.store.ChunksForEntity(ctx, entityID, "")
		if err != nil {
			out <- legResult{source: SourceStructured, err: fmt.Errorf("structured leg: %w", err)}
			return
		}
		for _, id := range direct {
			if scoreDirectMention > scores[id] {
				scores[id] = scoreDirectMention
			}
		}

		edges, err := r.store.Relationships(ctx, entityID)
		if err != nil {
			out <- legResult{source: SourceStructured, err: fmt.Errorf("structured leg: %w", err)}
			return
		}
		for _, edge := range edges {
			neighbors, err := r.store.ChunksForEntity(ctx, edge.ToEntityID, "")
			if err != nil {
				out <- legResult{source: SourceStructured, err: fmt.Errorf("structured leg: %w", err)}
				return
			}
			for _, id := range neighbors {
				if scoreNeighborhood > scores[id] {
					scores[id] = scoreNeighborhood
				}
			}
		}
	}

	out <- legResult{source: SourceStructured, scores: scores}
}

// Renormalize rescales the weights of the available spaces so they sum to 1.
// Unavailable spaces are excluded entirely rather than contributing zero
// scores. Pure function.
func Renormalize(weights map[string]float64, available map[string]bool) map[string]float64 {
	var sum float64
	for id, w := range weights {
		if available[id] {
			sum += w
		}
	}

	out := make(map[string]float64, len(weights))
	if sum == 0 {
		return out
	}
	for id, w := range weights {
		if available[id] {
			out[id] = w / sum
		}
	}
	return out
}

// normalizeInPlace min-max normalizes scores to [0,1]. A single hit, or a
// flat set, maps to 1.
func normalizeInPlace(scores map[narrative.ChunkID]float64) {
	if len(scores) == 0 {
		return
	}

	first := true
	var min, max float64
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	span := max - min
	for id, s := range scores {
		if span == 0 {
			scores[id] = 1
			continue
		}
		scores[id] = (s - min) / span
	}
}
