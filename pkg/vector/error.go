package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the space.
	ErrNotFound = errors.New("embedding not found")

	// ErrDimensionMismatch is returned when an embedding's length does not
	// match the space's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnavailable is returned when the vector backend cannot be reached.
	// Retrieval treats this as a per-space degradation, not a fatal error.
	ErrUnavailable = errors.New("vector store unavailable")
)
