package config

const (
	defaultStorageProvider = "sqlite"
	defaultSQLitePath      = "chronicle.db"

	defaultAPIListen = ":8081"

	defaultSpaceModel      = "nomic-embed-text"
	defaultSpaceProvider   = "sqlitevec"
	defaultSpaceTarget     = "chronicle-vec.db"
	defaultSpaceDimensions = 768
	defaultSpaceWeight     = 1.0

	defaultEmbeddingProvider = "ollama"
	defaultEmbeddingTarget   = "http://localhost:11434"

	defaultModelProvider  = "ollama"
	defaultModelTarget    = "http://localhost:11434"
	defaultModelTimeout   = 60
	defaultGenerationLLM  = "llama3.2"
	defaultEvaluationLLM  = "llama3.2"

	defaultContextCeiling = 8192
	defaultStructuredMin  = 10
	defaultStructuredMax  = 25
	defaultPassagesMin    = 25
	defaultPassagesMax    = 40
	defaultWarmMin        = 40
	defaultWarmMax        = 70
	defaultTokenModel     = "gpt-4o"

	defaultPlannerMaxSteps = 5

	defaultPhaseOneLimit = 50
	defaultPhaseTwoLimit = 10

	defaultOfflineMaxRetries = 6
	defaultOfflineBackoffMS  = 500

	defaultEventsTopic = "chronicle.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLitePath,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Spaces: []SpaceConfig{
			{
				ModelID:           defaultSpaceModel,
				Provider:          defaultSpaceProvider,
				Target:            defaultSpaceTarget,
				Dimensions:        defaultSpaceDimensions,
				Weight:            defaultSpaceWeight,
				EmbeddingProvider: defaultEmbeddingProvider,
				EmbeddingTarget:   defaultEmbeddingTarget,
			},
		},
		Generation: ModelConfig{
			Provider:       defaultModelProvider,
			Model:          defaultGenerationLLM,
			Target:         defaultModelTarget,
			TimeoutSeconds: defaultModelTimeout,
		},
		Evaluation: ModelConfig{
			Provider:       defaultModelProvider,
			Model:          defaultEvaluationLLM,
			Target:         defaultModelTarget,
			TimeoutSeconds: defaultModelTimeout,
		},
		Budget: BudgetConfig{
			ContextCeiling: defaultContextCeiling,
			StructuredMin:  defaultStructuredMin,
			StructuredMax:  defaultStructuredMax,
			PassagesMin:    defaultPassagesMin,
			PassagesMax:    defaultPassagesMax,
			WarmMin:        defaultWarmMin,
			WarmMax:        defaultWarmMax,
			TokenModel:     defaultTokenModel,
		},
		Planner: PlannerConfig{
			MaxSteps: defaultPlannerMaxSteps,
		},
		Distill: DistillConfig{
			PhaseOneLimit: defaultPhaseOneLimit,
			PhaseTwoLimit: defaultPhaseTwoLimit,
		},
		Turn: TurnConfig{
			OfflineMaxRetries: defaultOfflineMaxRetries,
			OfflineBackoffMS:  defaultOfflineBackoffMS,
		},
		Events: EventsConfig{
			Enabled: false,
			Topic:   defaultEventsTopic,
		},
	}
}
