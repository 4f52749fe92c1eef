// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and environment variables.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"runtime"
)

// Data provider kinds.
const (
	ProviderMemory   = "memory"
	ProviderSnapshot = "snapshot"
	ProviderSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// WorkerCount bounds concurrent plans inside one batch request.
	WorkerCount int `koanf:"worker_count"`

	// MaxPlanLimit caps the requested slot budget.
	MaxPlanLimit int `koanf:"max_plan_limit"`

	// DefaultLimit is used when a request omits its limit.
	DefaultLimit int `koanf:"default_limit"`

	// MaxBatchSize caps the number of crews in one batch request.
	MaxBatchSize int `koanf:"max_batch_size"`

	// ReferenceScore is the target competency score R.
	ReferenceScore float64 `koanf:"reference_score"`

	// Increment is the per-exercise development d.
	Increment float64 `koanf:"increment"`

	// SoftminGamma is the balance objective sharpness.
	SoftminGamma float64 `koanf:"softmin_gamma"`

	// PenaltyLambda weighs constraint violations in benchmark reports.
	PenaltyLambda float64 `koanf:"penalty_lambda"`

	// OptimizerIterations bounds the balance optimizer.
	OptimizerIterations int `koanf:"optimizer_iterations"`

	// SourceWeights maps source types to their default weights.
	SourceWeights map[string]float64 `koanf:"source_weights"`

	// FallbackWeight is used for sources with no default.
	FallbackWeight float64 `koanf:"fallback_weight"`

	// Competencies is the configured competency universe.
	Competencies []string `koanf:"competencies"`

	// Provider selects the data provider: memory, snapshot or sqlite.
	Provider string `koanf:"provider"`

	// SnapshotPath is the YAML snapshot read by the snapshot provider.
	SnapshotPath string `koanf:"snapshot_path"`

	// SQLitePath is the database file of the sqlite provider.
	SQLitePath string `koanf:"sqlite_path"`
}

// New creates a Config with defaults. Context is accepted first by
// project convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		WorkerCount:         runtime.NumCPU(),
		MaxPlanLimit:        50,
		DefaultLimit:        6,
		MaxBatchSize:        32,
		ReferenceScore:      3.5,
		Increment:           0.1,
		SoftminGamma:        10,
		PenaltyLambda:       2000,
		OptimizerIterations: 2000,
		SourceWeights: map[string]float64{
			"EVAL":          0.4,
			"QUALIFICATION": 0.3,
			"ASR":           0.15,
			"FDA":           0.15,
		},
		FallbackWeight: 0.1,
		Competencies:   []string{"APK", "COM", "FPA", "FPM", "KNO", "LTW", "PSD", "SAW", "WLM"},
		Provider:       ProviderMemory,
	}
}
