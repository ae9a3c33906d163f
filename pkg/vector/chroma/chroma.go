// Package chroma provides a Chroma vector database driver implementation.
// Each embedding space maps to its own collection, named after the model id.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

const collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// Driver implements vector.Driver for one space using Chroma's REST API.
type Driver struct {
	baseURL      string
	modelID      string
	collectionID string
	httpClient   *http.Client
	logger       *zap.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// ModelID names the embedding space; it doubles as the collection name.
	ModelID string
}

// NewDriver creates a Chroma vector driver for one embedding space.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}
	if c.ModelID == "" {
		return nil, fmt.Errorf("model id is required")
	}

	d := &Driver{
		baseURL: c.URL,
		modelID: c.ModelID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	collectionID, err := d.getOrCreateCollection(context.Background())
	if err != nil {
		return nil, fmt.Errorf("%w: getting or creating collection %q: %v", vector.ErrUnavailable, c.ModelID, err)
	}
	d.collectionID = collectionID

	logger.Info("connected to Chroma",
		zap.String("url", c.URL),
		zap.String("model_id", c.ModelID),
		zap.String("collection_id", collectionID),
	)

	return d, nil
}

func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s%s/%s", d.baseURL, collectionsPath, d.modelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return collection.ID, nil
	}

	createBody, err := json.Marshal(map[string]string{"name": d.modelID})
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+collectionsPath, bytes.NewReader(createBody))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending create request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode, string(body))
	}

	var collection chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	return collection.ID, nil
}

// Add stores documents with their embeddings.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	metadatas := make([]map[string]any, len(docs))

	for i, doc := range docs {
		ids[i] = chunkKey(doc.ChunkID)
		embeddings[i] = doc.Embedding
		metadatas[i] = map[string]any{"model_id": d.modelID}
	}

	reqBody := chromaAddRequest{
		IDs:        ids,
		Embeddings: embeddings,
		Metadatas:  metadatas,
	}

	var out json.RawMessage
	status, err := d.post(ctx, "/add", reqBody, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("failed to add documents: status %d", status)
	}

	d.logger.Debug("added embeddings to chroma",
		zap.String("model_id", d.modelID),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"distances"},
	}

	var queryResp chromaQueryResponse
	status, err := d.post(ctx, "/query", reqBody, &queryResp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to query: status %d", status)
	}

	var results []vector.QueryResult
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return results, nil
	}

	ids := queryResp.IDs[0]
	distances := queryResp.Distances[0]

	for i, id := range ids {
		chunkID, err := parseChunkKey(id)
		if err != nil {
			d.logger.Warn("skipping non-numeric chroma id", zap.String("id", id))
			continue
		}

		var distance float64
		if i < len(distances) {
			distance = distances[i]
		}

		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ChunkID: chunkID,
				ModelID: d.modelID,
			},
			Score: 1.0 / (1.0 + distance),
		})
	}

	return results, nil
}

// Has reports whether a chunk is embedded in this space.
func (d *Driver) Has(ctx context.Context, id narrative.ChunkID) (bool, error) {
	reqBody := chromaGetRequest{
		IDs:     []string{chunkKey(id)},
		Include: []string{},
	}

	var getResp chromaGetResponse
	status, err := d.post(ctx, "/get", reqBody, &getResp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("failed to get document: status %d", status)
	}

	return len(getResp.IDs) > 0, nil
}

// Delete removes documents by chunk id.
func (d *Driver) Delete(ctx context.Context, ids []narrative.ChunkID) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chunkKey(id)
	}

	var out json.RawMessage
	status, err := d.post(ctx, "/delete", chromaDeleteRequest{IDs: keys}, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("failed to delete documents: status %d", status)
	}
	return nil
}

// Close releases resources. The HTTP client needs no teardown.
func (d *Driver) Close() error {
	return nil
}

// post sends a JSON body to a collection sub-endpoint and decodes the reply.
func (d *Driver) post(ctx context.Context, endpoint string, body any, out any) (int, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s%s/%s%s", d.baseURL, collectionsPath, d.collectionID, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func chunkKey(id narrative.ChunkID) string {
	return strconv.FormatInt(int64(id), 10)
}

func parseChunkKey(key string) (narrative.ChunkID, error) {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, err
	}
	return narrative.ChunkID(n), nil
}
