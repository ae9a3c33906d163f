// Package vector provides interfaces and implementations for storing and
// querying chunk embeddings. One Driver instance backs one embedding space:
// a single model with a fixed dimensionality. A chunk may be embedded in
// several independent spaces, each with its own driver.
package vector

import (
	"context"

	"github.com/papercomputeco/chronicle/pkg/narrative"
)

// Document is a stored chunk embedding within one space.
type Document struct {
	// ChunkID is the narrative chunk this embedding belongs to. At most one
	// document per chunk exists per space.
	ChunkID narrative.ChunkID

	// ModelID names the embedding space, recorded for provenance.
	ModelID string

	// Embedding is the vector representation of the chunk text.
	Embedding []float32
}

// QueryResult is a nearest-neighbor hit with its similarity score
// (higher = more similar).
type QueryResult struct {
	Document

	Score float64
}

// Driver handles storage and retrieval of embeddings for one space.
type Driver interface {
	// Add stores documents. An existing document for the same chunk is
	// replaced.
	Add(ctx context.Context, docs []Document) error

	// Query returns the topK most similar documents to the embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Has reports whether a chunk has an embedding in this space.
	Has(ctx context.Context, id narrative.ChunkID) (bool, error)

	// Delete removes documents by chunk id.
	Delete(ctx context.Context, ids []narrative.ChunkID) error

	// Close releases any resources held by the driver.
	Close() error
}
