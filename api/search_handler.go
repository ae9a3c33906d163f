package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/retrieval"
)

const defaultSearchTopK = 5

// searchResult is one fused retrieval hit with its chunk text attached.
type searchResult struct {
	ChunkID    narrative.ChunkID `json:"chunk_id"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Source     retrieval.Source  `json:"source"`
	Provenance string            `json:"provenance"`
}

// handleSearch runs the hybrid retriever for an ad-hoc query.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional, default 5): number of results to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	if s.config.Retriever == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{
			Error: "search is not configured: a retriever is required",
		})
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: "query parameter is required",
		})
	}

	topK := c.QueryInt("top_k", defaultSearchTopK)
	if topK <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: "top_k must be positive",
		})
	}

	candidates, err := s.config.Retriever.Retrieve(c.Context(), retrieval.Query{Text: query, K: topK})
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "search failed"})
	}

	results := make([]searchResult, 0, len(candidates))
	for _, cand := range candidates {
		chunk, err := s.storer.GetChunk(c.Context(), cand.ChunkID)
		if err != nil {
			s.logger.Warn("search hit without chunk",
				zap.Int64("chunk_id", int64(cand.ChunkID)),
				zap.Error(err),
			)
			continue
		}
		results = append(results, searchResult{
			ChunkID:    cand.ChunkID,
			Text:       chunk.Text,
			Score:      cand.Score,
			Source:     cand.Source,
			Provenance: cand.Provenance,
		})
	}

	return c.JSON(map[string]any{
		"count":   len(results),
		"results": results,
	})
}
