package narrative

import (
	"errors"
	"fmt"
)

var (
	// ErrChunkImmutable is returned when a write targets the text of a
	// finalized or embedded chunk.
	ErrChunkImmutable = errors.New("chunk text is immutable once finalized")

	// ErrInvalidTransition is returned for a disallowed lifecycle move.
	ErrInvalidTransition = errors.New("invalid chunk state transition")

	// ErrRelationshipMismatch is returned when the two directions of a
	// relationship pair disagree on type or valence.
	ErrRelationshipMismatch = errors.New("relationship pair type/valence mismatch")
)

// TransitionError wraps ErrInvalidTransition with the offending states.
func TransitionError(id ChunkID, from, to ChunkState) error {
	return fmt.Errorf("%s: %s -> %s: %w", id, from, to, ErrInvalidTransition)
}
