// Package lifecycle owns chunk state transitions. Every state change in the
// narrative goes through the Manager so the transition rules hold no matter
// which component asks.
package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

// Manager applies chunk state transitions against the store. Chunks are
// never deleted; a rejected draft is superseded in place.
type Manager struct {
	store  storage.Driver
	logger *zap.Logger
}

func NewManager(store storage.Driver, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// Draft creates a new chunk in the draft state.
func (m *Manager) Draft(ctx context.Context, text string) (*narrative.Chunk, error) {
	chunk, err := m.store.CreateChunk(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}

	m.logger.Debug("drafted chunk", zap.Int64("chunk_id", int64(chunk.ID)))
	return chunk, nil
}

// ReviseDraft replaces a draft's text during regeneration. Only mutable
// states accept new text.
func (m *Manager) ReviseDraft(ctx context.Context, id narrative.ChunkID, text string) error {
	if err := m.store.UpdateChunkText(ctx, id, text); err != nil {
		return fmt.Errorf("revising draft %s: %w", id, err)
	}
	return nil
}

// SubmitForReview moves a draft to pending_review.
func (m *Manager) SubmitForReview(ctx context.Context, id narrative.ChunkID) error {
	return m.transition(ctx, id, narrative.StatePendingReview, 0)
}

// Finalize commits a reviewed chunk to the permanent narrative. Its text is
// immutable from here on and it becomes visible to the warm slice
// immediately, before metadata enrichment or embedding.
func (m *Manager) Finalize(ctx context.Context, id narrative.ChunkID) error {
	return m.transition(ctx, id, narrative.StateFinalized, 0)
}

// MarkEmbedded records that every configured embedding space holds a vector
// for the chunk, making it eligible for vector retrieval.
func (m *Manager) MarkEmbedded(ctx context.Context, id narrative.ChunkID) error {
	return m.transition(ctx, id, narrative.StateEmbedded, 0)
}

// Reject sends a pending chunk back to draft and increments its
// regeneration count. The rejected text is superseded on the next revision,
// never archived as finalized.
func (m *Manager) Reject(ctx context.Context, id narrative.ChunkID) error {
	return m.transition(ctx, id, narrative.StateDraft, 1)
}

// transition loads the chunk, validates the edge, and persists the new
// state. regenDelta is added to the regeneration count.
func (m *Manager) transition(ctx context.Context, id narrative.ChunkID, to narrative.ChunkState, regenDelta int) error {
	chunk, err := m.store.GetChunk(ctx, id)
	if err != nil {
		return fmt.Errorf("loading chunk %s: %w", id, err)
	}

	if !narrative.ValidTransition(chunk.State, to) {
		return narrative.TransitionError(id, chunk.State, to)
	}

	if err := m.store.SetChunkState(ctx, id, to, chunk.RegenerationCount+regenDelta); err != nil {
		return fmt.Errorf("storing state %s for chunk %s: %w", to, id, err)
	}

	m.logger.Info("chunk state changed",
		zap.Int64("chunk_id", int64(id)),
		zap.String("from", string(chunk.State)),
		zap.String("to", string(to)))

	return nil
}
