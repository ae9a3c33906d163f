package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent chronicle configuration stored as
// config.toml in the .chronicle/ directory. The TOML layout uses sections
// for logical grouping; the spaces section is an array of tables, one per
// embedding space.
type Config struct {
	Version    int           `toml:"version"`
	Storage    StorageConfig `toml:"storage"`
	API        APIConfig     `toml:"api"`
	Spaces     []SpaceConfig `toml:"spaces"`
	Generation ModelConfig   `toml:"generation"`
	Evaluation ModelConfig   `toml:"evaluation"`
	Budget     BudgetConfig  `toml:"budget"`
	Planner    PlannerConfig `toml:"planner"`
	Distill    DistillConfig `toml:"distill"`
	Turn       TurnConfig    `toml:"turn"`
	Events     EventsConfig  `toml:"events"`
}

// StorageConfig holds relational store settings.
type StorageConfig struct {
	// Provider selects the relational driver: "sqlite", "postgres", or "memory".
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds audit API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// SpaceConfig describes one embedding space: which embedder produces its
// vectors, where they live, and its fixed weight in retrieval fusion.
type SpaceConfig struct {
	ModelID    string  `toml:"model_id"`
	Provider   string  `toml:"provider,omitempty"` // "sqlitevec" or "chroma"
	Target     string  `toml:"target,omitempty"`   // db path or base URL
	Dimensions uint    `toml:"dimensions,omitempty"`
	Weight     float64 `toml:"weight,omitempty"`

	// EmbeddingProvider is "ollama" or "openai"; EmbeddingTarget is its
	// base URL.
	EmbeddingProvider string `toml:"embedding_provider,omitempty"`
	EmbeddingTarget   string `toml:"embedding_target,omitempty"`
}

// ModelConfig holds settings for one LLM capability (generation or
// evaluation).
type ModelConfig struct {
	Provider       string `toml:"provider,omitempty"`
	Model          string `toml:"model,omitempty"`
	Target         string `toml:"target,omitempty"`
	TimeoutSeconds uint   `toml:"timeout_seconds,omitempty"`
}

// BudgetConfig holds the token budget envelope. Percentage ranges are
// whole percents of the payload budget.
type BudgetConfig struct {
	ContextCeiling uint `toml:"context_ceiling,omitempty"`
	StructuredMin  uint `toml:"structured_min,omitempty"`
	StructuredMax  uint `toml:"structured_max,omitempty"`
	PassagesMin    uint `toml:"passages_min,omitempty"`
	PassagesMax    uint `toml:"passages_max,omitempty"`
	WarmMin        uint `toml:"warm_min,omitempty"`
	WarmMax        uint `toml:"warm_max,omitempty"`

	// TokenModel names the tiktoken encoding model for counting; the
	// allocator falls back to a character heuristic when unavailable.
	TokenModel string `toml:"token_model,omitempty"`
}

// PlannerConfig bounds the agentic query planner.
type PlannerConfig struct {
	MaxSteps uint `toml:"max_steps,omitempty"`
}

// DistillConfig holds the two-phase distillation cutoffs.
type DistillConfig struct {
	PhaseOneLimit uint `toml:"phase_one_limit,omitempty"`
	PhaseTwoLimit uint `toml:"phase_two_limit,omitempty"`
}

// TurnConfig holds offline-mode retry settings for the turn engine.
type TurnConfig struct {
	OfflineMaxRetries uint `toml:"offline_max_retries,omitempty"`
	OfflineBackoffMS  uint `toml:"offline_backoff_ms,omitempty"`
}

// EventsConfig holds the turn-committed event stream settings.
type EventsConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported scalar config keys.
// Keys use dotted notation matching the TOML section structure. The spaces
// array is edited in the file directly, not through get/set.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"generation.provider": {
		get: func(c *Config) string { return c.Generation.Provider },
		set: func(c *Config, v string) error { c.Generation.Provider = v; return nil },
	},
	"generation.model": {
		get: func(c *Config) string { return c.Generation.Model },
		set: func(c *Config, v string) error { c.Generation.Model = v; return nil },
	},
	"generation.target": {
		get: func(c *Config) string { return c.Generation.Target },
		set: func(c *Config, v string) error { c.Generation.Target = v; return nil },
	},
	"evaluation.provider": {
		get: func(c *Config) string { return c.Evaluation.Provider },
		set: func(c *Config, v string) error { c.Evaluation.Provider = v; return nil },
	},
	"evaluation.model": {
		get: func(c *Config) string { return c.Evaluation.Model },
		set: func(c *Config, v string) error { c.Evaluation.Model = v; return nil },
	},
	"evaluation.target": {
		get: func(c *Config) string { return c.Evaluation.Target },
		set: func(c *Config, v string) error { c.Evaluation.Target = v; return nil },
	},
	"budget.context_ceiling": {
		get: func(c *Config) string { return uintString(c.Budget.ContextCeiling) },
		set: func(c *Config, v string) error { return setUint(&c.Budget.ContextCeiling, "budget.context_ceiling", v) },
	},
	"budget.token_model": {
		get: func(c *Config) string { return c.Budget.TokenModel },
		set: func(c *Config, v string) error { c.Budget.TokenModel = v; return nil },
	},
	"planner.max_steps": {
		get: func(c *Config) string { return uintString(c.Planner.MaxSteps) },
		set: func(c *Config, v string) error { return setUint(&c.Planner.MaxSteps, "planner.max_steps", v) },
	},
	"distill.phase_one_limit": {
		get: func(c *Config) string { return uintString(c.Distill.PhaseOneLimit) },
		set: func(c *Config, v string) error { return setUint(&c.Distill.PhaseOneLimit, "distill.phase_one_limit", v) },
	},
	"distill.phase_two_limit": {
		get: func(c *Config) string { return uintString(c.Distill.PhaseTwoLimit) },
		set: func(c *Config, v string) error { return setUint(&c.Distill.PhaseTwoLimit, "distill.phase_two_limit", v) },
	},
	"events.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Events.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for events.enabled: %w", err)
			}
			c.Events.Enabled = b
			return nil
		},
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

func uintString(v uint) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(v), 10)
}

func setUint(dst *uint, key, v string) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = uint(n)
	return nil
}
