// Package api provides a read-only HTTP surface for inspecting the
// narrative: chunks and their lifecycle state, entities and relationships,
// turn traces, and hybrid search. All writes go through the turn engine;
// nothing here mutates the store.
package api

import "github.com/papercomputeco/chronicle/pkg/retrieval"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Retriever enables the /search endpoint when set. Without it the
	// endpoint reports search as not configured.
	Retriever *retrieval.Retriever
}
