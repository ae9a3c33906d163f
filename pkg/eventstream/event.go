// Package eventstream defines the transport-neutral events chronicle emits
// after narrative integration, plus the Publisher contract backends satisfy.
package eventstream

import (
	"time"

	"github.com/papercomputeco/chronicle/pkg/narrative"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCommitted is emitted after a turn's chunk is committed
	// to the permanent narrative.
	EventTypeTurnCommitted = "chronicle.turn.committed"
)

// TurnCommittedEvent is a transport-neutral event payload for a committed
// turn. Consumers get the chunk id, not the text; the narrative store is
// the source of truth for prose.
type TurnCommittedEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	Turn          TurnMeta   `json:"turn"`
	Chunk         ChunkMeta  `json:"chunk"`
	Budget        BudgetMeta `json:"budget"`
}

// TurnMeta captures turn lifecycle metadata for the event.
type TurnMeta struct {
	TurnID      string    `json:"turn_id"`
	StartedAt   time.Time `json:"started_at"`
	CommittedAt time.Time `json:"committed_at"`
	DurationMs  int64     `json:"duration_ms"`

	// Regenerations counts quality-checkpoint rejections before acceptance.
	Regenerations int `json:"regenerations"`

	// WentOffline is true when the generation call had to ride out an
	// offline period before committing.
	WentOffline bool `json:"went_offline"`
}

// ChunkMeta identifies the committed chunk.
type ChunkMeta struct {
	ChunkID narrative.ChunkID    `json:"chunk_id"`
	State   narrative.ChunkState `json:"state"`
}

// BudgetMeta records the payload split the turn was assembled under.
type BudgetMeta struct {
	PayloadTokens    int    `json:"payload_tokens"`
	StructuredTokens int    `json:"structured_tokens"`
	PassagesTokens   int    `json:"passages_tokens"`
	WarmTokens       int    `json:"warm_tokens"`
	Justification    string `json:"justification,omitempty"`
}
