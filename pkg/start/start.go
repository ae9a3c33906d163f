// Package start assembles a running chronicle system from configuration:
// the relational store, embedding spaces, retrieval, planning, distillation,
// budgeting, the turn engine, and the event stream. It also guards the
// narrative against concurrent writer processes with a lock file.
package start

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/budget"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/credentials"
	"github.com/papercomputeco/chronicle/pkg/distill"
	"github.com/papercomputeco/chronicle/pkg/embeddings"
	ollamaembed "github.com/papercomputeco/chronicle/pkg/embeddings/ollama"
	openaiembed "github.com/papercomputeco/chronicle/pkg/embeddings/openai"
	"github.com/papercomputeco/chronicle/pkg/eventstream"
	"github.com/papercomputeco/chronicle/pkg/eventstream/kafka"
	"github.com/papercomputeco/chronicle/pkg/eventstream/nop"
	"github.com/papercomputeco/chronicle/pkg/lifecycle"
	"github.com/papercomputeco/chronicle/pkg/llm/provider"
	"github.com/papercomputeco/chronicle/pkg/planner"
	"github.com/papercomputeco/chronicle/pkg/resolver"
	"github.com/papercomputeco/chronicle/pkg/retrieval"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	"github.com/papercomputeco/chronicle/pkg/storage/postgres"
	"github.com/papercomputeco/chronicle/pkg/storage/sqlite"
	"github.com/papercomputeco/chronicle/pkg/turn"
	"github.com/papercomputeco/chronicle/pkg/vector"
	"github.com/papercomputeco/chronicle/pkg/vector/chroma"
	"github.com/papercomputeco/chronicle/pkg/vector/sqlitevec"
)

// defaultSystemPrompt is the standing instruction block reserved off the top
// of every generation payload.
const defaultSystemPrompt = `You are the narrator of an ongoing interactive story.
Write vivid, consistent prose. Honor the world state and earlier passages;
never contradict established facts. Continue from the player's action.`

// System is a fully wired chronicle instance.
type System struct {
	Config    *config.Config
	Store     storage.Driver
	Spaces    []retrieval.Space
	Retriever *retrieval.Retriever
	Engine    *turn.Engine
	Publisher eventstream.Publisher
	Logger    *zap.Logger
}

// Build wires every component from the configuration. Callers own the
// returned System and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*System, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	creds, err := credentials.NewManager("")
	if err != nil {
		logger.Warn("credentials store unavailable, relying on environment", zap.Error(err))
		creds = nil
	}

	spaces, err := buildSpaces(cfg, creds, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	retriever := retrieval.NewRetriever(store, spaces, logger)

	// Prose generations run long; stream them so bytes keep flowing ahead
	// of the per-call deadline. Evaluation calls are short and stay buffered.
	genCfg := modelProviderConfig(cfg.Generation)
	genCfg.APIKey = resolveKey(creds, cfg.Generation.Provider)
	genCfg.Stream = strings.ToLower(cfg.Generation.Provider) == "openai"
	generator, err := provider.NewGenerator(genCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("generation provider: %w", err)
	}
	evalCfg := modelProviderConfig(cfg.Evaluation)
	evalCfg.APIKey = resolveKey(creds, cfg.Evaluation.Provider)
	evalCall, err := provider.NewCaller(evalCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("evaluation provider: %w", err)
	}

	counter := budget.NewTokenCounter(cfg.Budget.TokenModel, logger)
	allocator := budget.NewAllocator(budget.Config{
		ContextCeiling: cfg.Budget.ContextCeiling,
		Structured:     budget.Range{Min: cfg.Budget.StructuredMin, Max: cfg.Budget.StructuredMax},
		Passages:       budget.Range{Min: cfg.Budget.PassagesMin, Max: cfg.Budget.PassagesMax},
		Warm:           budget.Range{Min: cfg.Budget.WarmMin, Max: cfg.Budget.WarmMax},
	}, counter, logger)

	queryPlanner := planner.NewPlanner(planner.Config{MaxSteps: cfg.Planner.MaxSteps}, store, evalCall, logger)
	distiller := distill.NewDistiller(distill.Config{
		PhaseOneLimit: cfg.Distill.PhaseOneLimit,
		PhaseTwoLimit: cfg.Distill.PhaseTwoLimit,
	}, retriever, store, evalCall, logger)

	var publisher eventstream.Publisher
	if cfg.Events.Enabled {
		publisher = kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		}, logger)
	} else {
		publisher = nop.NewPublisher()
	}

	engine := turn.NewEngine(
		turn.Config{
			SystemPrompt:      defaultSystemPrompt,
			OfflineMaxRetries: cfg.Turn.OfflineMaxRetries,
			OfflineBackoff:    time.Duration(cfg.Turn.OfflineBackoffMS) * time.Millisecond,
		},
		store,
		lifecycle.NewManager(store, logger),
		resolver.NewResolver(store, logger),
		queryPlanner,
		distiller,
		allocator,
		generator,
		spaces,
		publisher,
		logger,
	)

	return &System{
		Config:    cfg,
		Store:     store,
		Spaces:    spaces,
		Retriever: retriever,
		Engine:    engine,
		Publisher: publisher,
		Logger:    logger,
	}, nil
}

// Close waits for in-flight enrichment and releases every backend.
func (s *System) Close() error {
	s.Engine.WaitEnrichment()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, space := range s.Spaces {
		keep(space.Embedder.Close())
		keep(space.Store.Close())
	}
	keep(s.Publisher.Close())
	keep(s.Store.Close())
	return firstErr
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Driver, error) {
	switch cfg.Storage.Provider {
	case "sqlite":
		driver, err := sqlite.NewDriver(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return driver, nil
	case "postgres":
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return driver, nil
	case "memory", "":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildSpaces(cfg *config.Config, creds *credentials.Manager, logger *zap.Logger) ([]retrieval.Space, error) {
	spaces := make([]retrieval.Space, 0, len(cfg.Spaces))
	for _, sc := range cfg.Spaces {
		embedder, err := buildEmbedder(sc, creds)
		if err != nil {
			return nil, fmt.Errorf("space %s: %w", sc.ModelID, err)
		}

		store, err := buildVectorStore(sc, logger)
		if err != nil {
			return nil, fmt.Errorf("space %s: %w", sc.ModelID, err)
		}

		spaces = append(spaces, retrieval.Space{
			ModelID:  sc.ModelID,
			Weight:   sc.Weight,
			Embedder: embedder,
			Store:    store,
		})
	}
	return spaces, nil
}

func buildEmbedder(sc config.SpaceConfig, creds *credentials.Manager) (embeddings.Embedder, error) {
	switch sc.EmbeddingProvider {
	case "ollama", "":
		return ollamaembed.NewEmbedder(ollamaembed.Config{
			BaseURL: sc.EmbeddingTarget,
			Model:   sc.ModelID,
		})
	case "openai":
		return openaiembed.NewEmbedder(openaiembed.Config{
			APIKey:  resolveKey(creds, "openai"),
			BaseURL: sc.EmbeddingTarget,
			Model:   sc.ModelID,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", sc.EmbeddingProvider)
	}
}

// resolveKey consults the credentials store for the provider's API key,
// tolerating a missing store. Env vars win inside Resolve.
func resolveKey(creds *credentials.Manager, prov string) string {
	if creds == nil {
		return ""
	}
	key, err := creds.Resolve(strings.ToLower(prov))
	if err != nil {
		return ""
	}
	return key
}

func buildVectorStore(sc config.SpaceConfig, logger *zap.Logger) (vector.Driver, error) {
	switch sc.Provider {
	case "sqlitevec", "":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     sc.Target,
			ModelID:    sc.ModelID,
			Dimensions: sc.Dimensions,
		}, logger)
	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:     sc.Target,
			ModelID: sc.ModelID,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown vector provider %q", sc.Provider)
	}
}

func modelProviderConfig(mc config.ModelConfig) provider.Config {
	return provider.Config{
		Provider: mc.Provider,
		Model:    mc.Model,
		BaseURL:  mc.Target,
		Timeout:  time.Duration(mc.TimeoutSeconds) * time.Second,
	}
}
