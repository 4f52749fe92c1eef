// Package bootstrap turns a loaded configuration into providers and
// service options. Both binaries wire themselves through it.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/crewtrain/internal/adapters/repository"
	"github.com/okian/crewtrain/internal/adapters/repository/sqlite"
	service "github.com/okian/crewtrain/internal/app"
	"github.com/okian/crewtrain/internal/config"
	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/planner"
	"github.com/okian/crewtrain/pkg/logger"
)

// OpenProvider opens the data provider selected by cfg.Provider.
func OpenProvider(ctx context.Context, cfg *config.Config) (repository.Provider, error) {
	switch cfg.Provider {
	case config.ProviderMemory:
		return repository.NewMemoryStore(), nil
	case config.ProviderSnapshot:
		store, err := repository.LoadSnapshot(ctx, cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("open snapshot provider: %w", err)
		}
		return store, nil
	case config.ProviderSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite provider: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}

// BalanceConfig extracts the optimizer settings.
func BalanceConfig(cfg *config.Config) planner.BalanceConfig {
	return planner.BalanceConfig{Gamma: cfg.SoftminGamma, Iterations: cfg.OptimizerIterations}
}

// ServiceOptions maps cfg onto service options around provider.
func ServiceOptions(cfg *config.Config, provider repository.Provider, log logger.Logger) []service.Option {
	return []service.Option{
		service.WithLogger(log),
		service.WithProvider(provider, cfg.Provider),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithLimits(cfg.DefaultLimit, cfg.MaxPlanLimit),
		service.WithMaxBatchSize(cfg.MaxBatchSize),
		service.WithReference(cfg.ReferenceScore),
		service.WithIncrement(cfg.Increment),
		service.WithSourceWeights(SourceWeights(cfg.SourceWeights), cfg.FallbackWeight),
		service.WithCompetencies(Competencies(cfg.Competencies)),
		service.WithBalanceConfig(BalanceConfig(cfg)),
	}
}

// SourceWeights normalizes configured source names.
func SourceWeights(in map[string]float64) map[model.SourceType]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[model.SourceType]float64, len(in))
	for k, v := range in {
		out[model.SourceType(strings.ToUpper(strings.TrimSpace(k)))] = v
	}
	return out
}

// Competencies normalizes configured competency codes, dropping blanks
// and duplicates.
func Competencies(in []string) []model.CompetencyCode {
	seen := make(map[model.CompetencyCode]bool, len(in))
	out := make([]model.CompetencyCode, 0, len(in))
	for _, c := range in {
		code := model.CompetencyCode(strings.ToUpper(strings.TrimSpace(c)))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}
