package turn

import (
	"strings"

	"github.com/papercomputeco/chronicle/pkg/budget"
	"github.com/papercomputeco/chronicle/pkg/narrative"
)

// BlockKind labels a payload block by the budget category it spends.
type BlockKind string

const (
	BlockSystem     BlockKind = "system"
	BlockWorldState BlockKind = "world_state"
	BlockPassage    BlockKind = "passage"
	BlockWarm       BlockKind = "warm"
	BlockUserInput  BlockKind = "user_input"
)

// Block is one ordered section of the assembled prompt. ChunkID is set for
// blocks whose text is narrative prose.
type Block struct {
	Kind    BlockKind         `json:"kind"`
	Text    string            `json:"text"`
	ChunkID narrative.ChunkID `json:"chunk_id,omitempty"`
}

// ContextPayload is the fully assembled prompt for one generation call,
// together with the allocation that shaped it. It is persisted in the turn
// trace for audit.
type ContextPayload struct {
	Blocks     []Block            `json:"blocks"`
	Allocation *budget.Allocation `json:"allocation"`
}

// Render flattens the payload into prompt text. Block order is fixed:
// system, world state, cold passages (chronological), warm slice
// (chronological), then the player's input.
func (p *ContextPayload) Render() string {
	var sb strings.Builder

	for _, block := range p.Blocks {
		switch block.Kind {
		case BlockSystem:
			sb.WriteString(block.Text)
			sb.WriteString("\n\n")
		case BlockWorldState:
			sb.WriteString("## World state\n")
			sb.WriteString(block.Text)
			sb.WriteString("\n\n")
		case BlockPassage:
			sb.WriteString("## From earlier in the story\n")
			sb.WriteString(block.Text)
			sb.WriteString("\n\n")
		case BlockWarm:
			sb.WriteString(block.Text)
			sb.WriteString("\n\n")
		case BlockUserInput:
			sb.WriteString("## The player acts\n")
			sb.WriteString(block.Text)
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
