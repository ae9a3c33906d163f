package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chronicle/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .chronicle/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the list of all supported scalar configuration
// keys, in TOML section order.
func ValidConfigKeys() []string {
	ordered := []string{
		"storage.provider",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"api.listen",
		"generation.provider",
		"generation.model",
		"generation.target",
		"evaluation.provider",
		"evaluation.model",
		"evaluation.target",
		"budget.context_ceiling",
		"budget.token_model",
		"planner.max_steps",
		"distill.phase_one_limit",
		"distill.phase_two_limit",
		"events.enabled",
		"events.topic",
	}

	result := make([]string, 0, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map missed by the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	rest := make([]string, 0)
	for k := range configKeys {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	return append(result, rest...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target
// .chronicle/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config with
// sane defaults. Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// ParseConfigTOML decodes TOML bytes into a Config. Unknown keys are
// rejected so typos surface immediately rather than silently falling back
// to defaults.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key: %q", undecoded[0].String())
	}

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = defaults.Storage.Provider
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = defaults.Storage.SQLitePath
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if len(cfg.Spaces) == 0 {
		cfg.Spaces = defaults.Spaces
	}
	for i := range cfg.Spaces {
		s := &cfg.Spaces[i]
		if s.Provider == "" {
			s.Provider = defaultSpaceProvider
		}
		if s.Weight == 0 {
			s.Weight = defaultSpaceWeight
		}
		if s.EmbeddingProvider == "" {
			s.EmbeddingProvider = defaultEmbeddingProvider
		}
		if s.EmbeddingTarget == "" {
			s.EmbeddingTarget = defaultEmbeddingTarget
		}
	}

	applyModelDefaults(&cfg.Generation, &defaults.Generation)
	applyModelDefaults(&cfg.Evaluation, &defaults.Evaluation)

	if cfg.Budget.ContextCeiling == 0 {
		cfg.Budget.ContextCeiling = defaults.Budget.ContextCeiling
	}
	if cfg.Budget.StructuredMin == 0 && cfg.Budget.StructuredMax == 0 {
		cfg.Budget.StructuredMin = defaults.Budget.StructuredMin
		cfg.Budget.StructuredMax = defaults.Budget.StructuredMax
	}
	if cfg.Budget.PassagesMin == 0 && cfg.Budget.PassagesMax == 0 {
		cfg.Budget.PassagesMin = defaults.Budget.PassagesMin
		cfg.Budget.PassagesMax = defaults.Budget.PassagesMax
	}
	if cfg.Budget.WarmMin == 0 && cfg.Budget.WarmMax == 0 {
		cfg.Budget.WarmMin = defaults.Budget.WarmMin
		cfg.Budget.WarmMax = defaults.Budget.WarmMax
	}
	if cfg.Budget.TokenModel == "" {
		cfg.Budget.TokenModel = defaults.Budget.TokenModel
	}

	if cfg.Planner.MaxSteps == 0 {
		cfg.Planner.MaxSteps = defaults.Planner.MaxSteps
	}

	if cfg.Distill.PhaseOneLimit == 0 {
		cfg.Distill.PhaseOneLimit = defaults.Distill.PhaseOneLimit
	}
	if cfg.Distill.PhaseTwoLimit == 0 {
		cfg.Distill.PhaseTwoLimit = defaults.Distill.PhaseTwoLimit
	}

	if cfg.Turn.OfflineMaxRetries == 0 {
		cfg.Turn.OfflineMaxRetries = defaults.Turn.OfflineMaxRetries
	}
	if cfg.Turn.OfflineBackoffMS == 0 {
		cfg.Turn.OfflineBackoffMS = defaults.Turn.OfflineBackoffMS
	}

	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

func applyModelDefaults(mc, d *ModelConfig) {
	if mc.Provider == "" {
		mc.Provider = d.Provider
	}
	if mc.Model == "" {
		mc.Model = d.Model
	}
	if mc.Target == "" {
		mc.Target = d.Target
	}
	if mc.TimeoutSeconds == 0 {
		mc.TimeoutSeconds = d.TimeoutSeconds
	}
}

// SaveConfig persists the configuration to config.toml in the target
// .chronicle/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// Validate checks the cross-field invariants the engine depends on: every
// budget range is a proper [min,max] interval and the weights of configured
// spaces are positive.
func Validate(cfg *Config) error {
	ranges := []struct {
		name     string
		min, max uint
	}{
		{"structured", cfg.Budget.StructuredMin, cfg.Budget.StructuredMax},
		{"passages", cfg.Budget.PassagesMin, cfg.Budget.PassagesMax},
		{"warm", cfg.Budget.WarmMin, cfg.Budget.WarmMax},
	}

	var minSum uint
	for _, r := range ranges {
		if r.min > r.max {
			return fmt.Errorf("budget range %s: min %d exceeds max %d", r.name, r.min, r.max)
		}
		if r.max > 100 {
			return fmt.Errorf("budget range %s: max %d exceeds 100%%", r.name, r.max)
		}
		minSum += r.min
	}
	if minSum > 100 {
		return fmt.Errorf("budget range minima sum to %d%%, exceeding 100%%", minSum)
	}

	for _, s := range cfg.Spaces {
		if s.ModelID == "" {
			return errors.New("space missing model_id")
		}
		if s.Weight <= 0 {
			return fmt.Errorf("space %s: weight must be positive", s.ModelID)
		}
	}

	return nil
}
