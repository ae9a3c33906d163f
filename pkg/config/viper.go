package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chronicle/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHRONICLE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHRONICLE_API_LISTEN, CHRONICLE_STORAGE_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: CHRONICLE_API_LISTEN, CHRONICLE_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Generation / evaluation models
	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.target", d.Generation.Target)
	v.SetDefault("generation.timeout_seconds", d.Generation.TimeoutSeconds)
	v.SetDefault("evaluation.provider", d.Evaluation.Provider)
	v.SetDefault("evaluation.model", d.Evaluation.Model)
	v.SetDefault("evaluation.target", d.Evaluation.Target)
	v.SetDefault("evaluation.timeout_seconds", d.Evaluation.TimeoutSeconds)

	// Budget
	v.SetDefault("budget.context_ceiling", d.Budget.ContextCeiling)
	v.SetDefault("budget.structured_min", d.Budget.StructuredMin)
	v.SetDefault("budget.structured_max", d.Budget.StructuredMax)
	v.SetDefault("budget.passages_min", d.Budget.PassagesMin)
	v.SetDefault("budget.passages_max", d.Budget.PassagesMax)
	v.SetDefault("budget.warm_min", d.Budget.WarmMin)
	v.SetDefault("budget.warm_max", d.Budget.WarmMax)
	v.SetDefault("budget.token_model", d.Budget.TokenModel)

	// Planner / distill / turn
	v.SetDefault("planner.max_steps", d.Planner.MaxSteps)
	v.SetDefault("distill.phase_one_limit", d.Distill.PhaseOneLimit)
	v.SetDefault("distill.phase_two_limit", d.Distill.PhaseTwoLimit)
	v.SetDefault("turn.offline_max_retries", d.Turn.OfflineMaxRetries)
	v.SetDefault("turn.offline_backoff_ms", d.Turn.OfflineBackoffMS)

	// Events
	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
