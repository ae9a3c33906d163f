package testutils

import (
	"context"
	"fmt"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Model      string
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches.
	// "*" fails every call, simulating a down embedding space.
	FailOn string
}

func NewMockEmbedder(model string) *MockEmbedder {
	return &MockEmbedder{
		Model:      model,
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.FailOn == "*" || (m.FailOn != "" && text == m.FailOn) {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) ModelID() string {
	return m.Model
}

func (m *MockEmbedder) Close() error {
	return nil
}
