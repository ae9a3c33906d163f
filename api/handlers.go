package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

const defaultTailLimit = 10

// errorResponse is the JSON body for every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

// chunkResponse pairs a chunk with its metadata when enrichment has run.
// Metadata is best-effort: a chunk whose enrichment failed or has not
// completed yet is still served.
type chunkResponse struct {
	Chunk    *narrative.Chunk    `json:"chunk"`
	Metadata *narrative.Metadata `json:"metadata,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleTail returns the newest finalized chunks, oldest first, the same
// view the warm slice sees.
func (s *Server) handleTail(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultTailLimit)
	if limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "limit must be positive"})
	}

	chunks, err := s.storer.TailChunks(c.Context(), limit)
	if err != nil && !errors.Is(err, storage.ErrEmptyNarrative) {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to load tail"})
	}

	// Newest-first from the store; serve in reading order.
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}

	return c.JSON(map[string]any{
		"count":  len(chunks),
		"chunks": chunks,
	})
}

// handleGetChunk returns one chunk with its metadata, if enriched.
func (s *Server) handleGetChunk(c *fiber.Ctx) error {
	id, err := chunkIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid chunk id"})
	}

	chunk, err := s.storer.GetChunk(c.Context(), id)
	if err != nil {
		return notFoundOrInternal(c, err)
	}

	resp := chunkResponse{Chunk: chunk}
	if meta, err := s.storer.GetMetadata(c.Context(), id); err == nil {
		resp.Metadata = meta
	}

	return c.JSON(resp)
}

// handleGetMetadata returns a chunk's structured metadata alone.
func (s *Server) handleGetMetadata(c *fiber.Ctx) error {
	id, err := chunkIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid chunk id"})
	}

	meta, err := s.storer.GetMetadata(c.Context(), id)
	if err != nil {
		return notFoundOrInternal(c, err)
	}

	return c.JSON(meta)
}

// handleListEntities returns entities, optionally narrowed by kind.
func (s *Server) handleListEntities(c *fiber.Ctx) error {
	kind := narrative.EntityKind(c.Query("kind"))

	entities, err := s.storer.ListEntities(c.Context(), kind)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to list entities"})
	}

	return c.JSON(map[string]any{
		"count":    len(entities),
		"entities": entities,
	})
}

// handleGetEntity returns one entity profile.
func (s *Server) handleGetEntity(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid entity id"})
	}

	entity, err := s.storer.GetEntity(c.Context(), id)
	if err != nil {
		return notFoundOrInternal(c, err)
	}

	return c.JSON(entity)
}

// handleRelationships returns an entity's outgoing relationship edges.
func (s *Server) handleRelationships(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid entity id"})
	}

	edges, err := s.storer.Relationships(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to load relationships"})
	}

	return c.JSON(map[string]any{
		"count":         len(edges),
		"relationships": edges,
	})
}

// handleListTurns returns recent turn traces, newest first.
func (s *Server) handleListTurns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultTailLimit)
	if limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "limit must be positive"})
	}

	traces, err := s.storer.ListTurnTraces(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to list turn traces"})
	}

	return c.JSON(map[string]any{
		"count":  len(traces),
		"traces": traces,
	})
}

// handleGetTurn returns one turn's persisted context-assembly trace.
func (s *Server) handleGetTurn(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "turn id required"})
	}

	trace, err := s.storer.GetTurnTrace(c.Context(), id)
	if err != nil {
		return notFoundOrInternal(c, err)
	}

	return c.JSON(trace)
}

func chunkIDParam(c *fiber.Ctx) (narrative.ChunkID, error) {
	raw, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return narrative.ChunkID(raw), nil
}

func notFoundOrInternal(c *fiber.Ctx, err error) error {
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "storage error"})
}
