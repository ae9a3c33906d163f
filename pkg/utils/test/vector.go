package testutils

import (
	"context"
	"errors"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

// MockVectorDriver is a test vector driver
type MockVectorDriver struct {
	Documents []vector.Document

	// Results is returned by Query regardless of the embedding.
	Results []vector.QueryResult

	// Fail causes every call to return an error, simulating a down store.
	Fail bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		Documents: make([]vector.Document, 0),
		Results:   make([]vector.QueryResult, 0),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	if m.Fail {
		return errors.New("mock vector store failure")
	}
	m.Documents = append(m.Documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	if m.Fail {
		return nil, errors.New("mock vector store failure")
	}
	if len(m.Results) < topK {
		return m.Results, nil
	}
	return m.Results[:topK], nil
}

func (m *MockVectorDriver) Has(_ context.Context, id narrative.ChunkID) (bool, error) {
	if m.Fail {
		return false, errors.New("mock vector store failure")
	}
	for _, doc := range m.Documents {
		if doc.ChunkID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []narrative.ChunkID) error {
	if m.Fail {
		return errors.New("mock vector store failure")
	}
	kept := m.Documents[:0]
	for _, doc := range m.Documents {
		drop := false
		for _, id := range ids {
			if doc.ChunkID == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, doc)
		}
	}
	m.Documents = kept
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
