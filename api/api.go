package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/storage"
)

// Server is the read-only inspection API for the chronicle system.
type Server struct {
	config Config
	storer storage.Driver
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The storer is injected to allow
// sharing with the turn engine when both run in one process.
func NewServer(config Config, storer storage.Driver, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		storer: storer,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/tail", s.handleTail)
	app.Get("/chunks/:id", s.handleGetChunk)
	app.Get("/chunks/:id/metadata", s.handleGetMetadata)
	app.Get("/entities", s.handleListEntities)
	app.Get("/entities/:id", s.handleGetEntity)
	app.Get("/entities/:id/relationships", s.handleRelationships)
	app.Get("/turns", s.handleListTurns)
	app.Get("/turns/:id", s.handleGetTurn)
	app.Get("/search", s.handleSearch)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
