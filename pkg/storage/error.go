package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when the relational store cannot be
	// reached. The store is always required, so callers treat this as fatal
	// for the operation in progress. Never retried.
	ErrUnavailable = errors.New("relational store unavailable")

	// ErrEmptyNarrative is returned by Tail when no chunk has been
	// finalized yet.
	ErrEmptyNarrative = errors.New("narrative has no finalized chunks")

	// ErrReadOnly is returned when a planner query attempts anything other
	// than a single SELECT statement.
	ErrReadOnly = errors.New("only read-only queries are permitted")
)

// NotFoundError is returned when a requested record does not exist.
type NotFoundError struct {
	Kind string // "chunk", "entity", "metadata", "trace"
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
