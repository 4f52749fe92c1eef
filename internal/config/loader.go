package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment knobs.
const (
	EnvPrefix     = "CREWTRAIN_"
	EnvConfigFile = "CREWTRAIN_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if CREWTRAIN_CONFIG is set
//  3. env (prefix CREWTRAIN_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// CREWTRAIN_MAX_PLAN_LIMIT -> max_plan_limit. Underscores are kept to
	// match the flat koanf tags; list keys accept comma separated values.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "competencies" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// File-provided source weights merge over the defaults.
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the service relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxPlanLimit <= 0:
		return fmt.Errorf("%w: max_plan_limit must be positive", ErrInvalidConfig)
	case c.DefaultLimit <= 0 || c.DefaultLimit > c.MaxPlanLimit:
		return fmt.Errorf("%w: default_limit must be in 1..max_plan_limit", ErrInvalidConfig)
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("%w: max_batch_size must be positive", ErrInvalidConfig)
	case c.ReferenceScore <= 0 || c.ReferenceScore > 5:
		return fmt.Errorf("%w: reference_score must be in (0,5]", ErrInvalidConfig)
	case c.Increment <= 0:
		return fmt.Errorf("%w: increment must be positive", ErrInvalidConfig)
	case c.SoftminGamma <= 0:
		return fmt.Errorf("%w: softmin_gamma must be positive", ErrInvalidConfig)
	case c.FallbackWeight < 0:
		return fmt.Errorf("%w: fallback_weight must not be negative", ErrInvalidConfig)
	}
	for source, w := range c.SourceWeights {
		if w < 0 {
			return fmt.Errorf("%w: source weight %s is negative", ErrInvalidConfig, source)
		}
	}
	switch c.Provider {
	case ProviderMemory:
	case ProviderSnapshot:
		if c.SnapshotPath == "" {
			return fmt.Errorf("%w: snapshot_path is required for the snapshot provider", ErrInvalidConfig)
		}
	case ProviderSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
