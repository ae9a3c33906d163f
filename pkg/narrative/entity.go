package narrative

// EntityKind classifies an entity record.
type EntityKind string

const (
	KindCharacter EntityKind = "character"
	KindFaction   EntityKind = "faction"
	KindPlace     EntityKind = "place"
	KindItem      EntityKind = "item"
)

// Entity is a mutable profile record for a character, faction, place or item.
type Entity struct {
	ID   int64      `json:"id"`
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`

	Summary string `json:"summary,omitempty"`

	// Attributes is an open bag of free-form fields (appearance, goals,
	// current status, ...). Keys are caller-defined.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Alias maps an alternate name to a canonical entity.
type Alias struct {
	EntityID int64  `json:"entity_id"`
	Name     string `json:"name"`
}

// RefKind distinguishes how a chunk references an entity.
type RefKind string

const (
	// RefPresent means the entity is on-screen in the chunk.
	RefPresent RefKind = "present"

	// RefMentioned means the entity is only spoken of in the chunk.
	RefMentioned RefKind = "mentioned"
)

// ChunkEntityRef joins a chunk to an entity it references.
type ChunkEntityRef struct {
	ChunkID  ChunkID `json:"chunk_id"`
	EntityID int64   `json:"entity_id"`
	Kind     RefKind `json:"kind"`
}

// RelationshipEdge is one direction of a relationship between two entities.
// Both directions are stored as independent rows; WriteRelationshipPair in
// the storage layer enforces that a pair's type and valence always match.
type RelationshipEdge struct {
	FromEntityID int64 `json:"from_entity_id"`
	ToEntityID   int64 `json:"to_entity_id"`

	// Type names the relationship (ally, rival, parent, owner, ...).
	Type string `json:"type"`

	// Valence is the signed intensity of the relationship, -1.0 to 1.0.
	Valence float64 `json:"valence"`

	// Dynamic describes how this side treats the other.
	Dynamic string `json:"dynamic,omitempty"`

	// History is free-text background for this direction.
	History string `json:"history,omitempty"`
}
