// Package narrative defines the core domain types for the chronicle system:
// narrative chunks, their structured metadata, entities and relationships,
// and the chunk lifecycle states.
//
// A chunk is one immutable unit of story text. Chunk ids are assigned by the
// storage layer as a monotonically increasing sequence, so ascending id order
// is chronological narrative order. Once a chunk reaches StateFinalized its
// text never changes; rejection of a pending chunk produces a new draft
// rather than mutating the old one.
package narrative

import (
	"fmt"
	"time"
)

// ChunkID identifies a narrative chunk. Ids are strictly increasing and
// define chronological order across the whole narrative.
type ChunkID int64

// ChunkState tracks where a chunk is in its review/embedding lifecycle.
type ChunkState string

const (
	// StateDraft is a freshly generated chunk awaiting review.
	StateDraft ChunkState = "draft"

	// StatePendingReview is a chunk presented at the quality checkpoint.
	StatePendingReview ChunkState = "pending_review"

	// StateFinalized is an accepted chunk. Its text is immutable and it is
	// immediately visible to the warm slice, but not yet to metadata or
	// full-text search.
	StateFinalized ChunkState = "finalized"

	// StateEmbedded is a finalized chunk whose metadata and embeddings have
	// been written. Only embedded chunks participate in retrieval.
	StateEmbedded ChunkState = "embedded"
)

// Chunk is one ordered unit of narrative text.
type Chunk struct {
	ID        ChunkID   `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`

	State ChunkState `json:"state"`

	// RegenerationCount is incremented each time a pending chunk is rejected
	// back to draft.
	RegenerationCount int `json:"regeneration_count"`
}

// Metadata is the structured enrichment written for a chunk after it is
// finalized. Enrichment may be partial; missing metadata must never block
// access to the chunk's raw text.
type Metadata struct {
	ChunkID ChunkID `json:"chunk_id"`

	Season  int `json:"season,omitempty"`
	Episode int `json:"episode,omitempty"`
	Scene   int `json:"scene,omitempty"`

	// WorldLayer distinguishes e.g. primary narrative from dreams,
	// flashbacks, or in-world documents.
	WorldLayer string `json:"world_layer,omitempty"`

	// CausalLinks are ids of earlier chunks this chunk directly follows from.
	CausalLinks []ChunkID `json:"causal_links,omitempty"`

	ThematicTags      []string `json:"thematic_tags,omitempty"`
	EmotionalTone     string   `json:"emotional_tone,omitempty"`
	ContinuityMarkers []string `json:"continuity_markers,omitempty"`

	// Slug is a short human-readable handle for the chunk.
	Slug string `json:"slug,omitempty"`
}

// ValidTransition reports whether a chunk may move from one state to another.
// The only backward edge is pending_review -> draft (rejection).
func ValidTransition(from, to ChunkState) bool {
	switch from {
	case StateDraft:
		return to == StatePendingReview
	case StatePendingReview:
		return to == StateFinalized || to == StateDraft
	case StateFinalized:
		return to == StateEmbedded
	default:
		return false
	}
}

// Mutable reports whether a chunk's text may still be rewritten.
func (s ChunkState) Mutable() bool {
	return s == StateDraft || s == StatePendingReview
}

func (id ChunkID) String() string {
	return fmt.Sprintf("chunk-%d", int64(id))
}
