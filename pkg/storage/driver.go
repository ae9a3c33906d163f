// Package storage defines the relational store interface for the chronicle
// system: chunk persistence and lifecycle state, structured metadata,
// entities, aliases, relationships, chunk-entity references, full-text
// search, and per-turn payload traces.
//
// The store is always required. Any driver that cannot reach its backend
// must surface the failure immediately; nothing in the system falls back to
// stale or partial relational data.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/papercomputeco/chronicle/pkg/narrative"
)

// TextHit is one full-text search result with a normalized score in [0,1].
type TextHit struct {
	ChunkID narrative.ChunkID
	Score   float64
}

// QueryRows is the tabular result of a read-only query issued by the query
// planner. Values are rendered as strings so results can be summarized into
// a model prompt without type juggling.
type QueryRows struct {
	Columns []string
	Rows    [][]string
}

// TurnTrace is the persisted audit record of one turn's assembled context
// payload. The payload is stored as opaque JSON so the trace schema does not
// chase the payload type.
type TurnTrace struct {
	TurnID    string
	CreatedAt time.Time
	Payload   json.RawMessage
}

// Driver is the relational storage backend for the narrative.
//
// Chunk ids are assigned by the driver as a strictly increasing sequence.
// Text search only covers chunks whose structured metadata write has
// completed; Tail and TailChunks see finalized chunks immediately.
type Driver interface {
	// CreateChunk appends a new draft chunk with the next chronological id.
	CreateChunk(ctx context.Context, text string) (*narrative.Chunk, error)

	// GetChunk retrieves a chunk by id.
	GetChunk(ctx context.Context, id narrative.ChunkID) (*narrative.Chunk, error)

	// GetChunks retrieves several chunks at once. Missing ids are an error.
	GetChunks(ctx context.Context, ids []narrative.ChunkID) ([]*narrative.Chunk, error)

	// UpdateChunkText rewrites a chunk's text. Fails with
	// narrative.ErrChunkImmutable once the chunk is finalized.
	UpdateChunkText(ctx context.Context, id narrative.ChunkID, text string) error

	// SetChunkState records a lifecycle transition. Transition legality is
	// enforced by the lifecycle manager, not here.
	SetChunkState(ctx context.Context, id narrative.ChunkID, state narrative.ChunkState, regenerationCount int) error

	// Tail returns the id of the newest finalized chunk, the narrative's
	// chronological tail pointer. Returns ErrEmptyNarrative when no chunk
	// has been finalized yet.
	Tail(ctx context.Context) (narrative.ChunkID, error)

	// TailChunks returns up to limit finalized chunks, newest first.
	TailChunks(ctx context.Context, limit int) ([]*narrative.Chunk, error)

	// PutMetadata writes a chunk's structured metadata. Completing this
	// write is what makes the chunk visible to SearchText.
	PutMetadata(ctx context.Context, meta *narrative.Metadata) error

	// GetMetadata retrieves a chunk's metadata, if enrichment has run.
	GetMetadata(ctx context.Context, id narrative.ChunkID) (*narrative.Metadata, error)

	// SearchText runs full-text search over enriched chunks and returns
	// normalized hits, best first.
	SearchText(ctx context.Context, query string, limit int) ([]TextHit, error)

	// CreateEntity inserts an entity and returns its id.
	CreateEntity(ctx context.Context, entity *narrative.Entity) (int64, error)

	// GetEntity retrieves an entity by id.
	GetEntity(ctx context.Context, id int64) (*narrative.Entity, error)

	// UpdateEntity rewrites an entity profile.
	UpdateEntity(ctx context.Context, entity *narrative.Entity) error

	// ListEntities returns entities of a kind, or all kinds when kind is "".
	ListEntities(ctx context.Context, kind narrative.EntityKind) ([]*narrative.Entity, error)

	// AddAlias maps an alternate name to an entity.
	AddAlias(ctx context.Context, entityID int64, name string) error

	// FindEntityByName resolves a name or alias (case-insensitive exact
	// match) to its canonical entity.
	FindEntityByName(ctx context.Context, name string) (*narrative.Entity, error)

	// WriteRelationshipPair writes both directions of a relationship in one
	// transaction, rejecting pairs whose type or valence disagree.
	WriteRelationshipPair(ctx context.Context, forward, reverse narrative.RelationshipEdge) error

	// Relationships returns all outgoing edges for an entity.
	Relationships(ctx context.Context, entityID int64) ([]narrative.RelationshipEdge, error)

	// LinkEntity records that a chunk references an entity.
	LinkEntity(ctx context.Context, ref narrative.ChunkEntityRef) error

	// ChunksForEntity returns ids of chunks referencing an entity, oldest
	// first. kind narrows to present/mentioned when non-empty.
	ChunksForEntity(ctx context.Context, entityID int64, kind narrative.RefKind) ([]narrative.ChunkID, error)

	// ReadOnlyQuery executes a planner-proposed query. Callers must validate
	// the statement against the read-only allow-list first; drivers may
	// additionally refuse anything that is not a single SELECT.
	ReadOnlyQuery(ctx context.Context, query string) (*QueryRows, error)

	// SaveTurnTrace persists the audit trace of an integrated turn.
	SaveTurnTrace(ctx context.Context, trace *TurnTrace) error

	// GetTurnTrace retrieves one turn trace by turn id.
	GetTurnTrace(ctx context.Context, turnID string) (*TurnTrace, error)

	// ListTurnTraces returns up to limit traces, newest first.
	ListTurnTraces(ctx context.Context, limit int) ([]*TurnTrace, error)

	// Close releases driver resources.
	Close() error
}
