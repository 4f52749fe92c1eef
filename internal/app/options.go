package service

import (
	"github.com/okian/crewtrain/internal/adapters/repository"
	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/planner"
	"github.com/okian/crewtrain/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithProvider sets the data provider. The service closes it on Stop.
func WithProvider(p repository.Provider, name string) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
			s.providerName = name
		}
	}
}

// WithWorkerCount bounds concurrent plans within one batch.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithLimits sets the default and maximum slot budget.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if maxLimit > 0 && defaultLimit > 0 && defaultLimit <= maxLimit {
			s.defaultLimit = defaultLimit
			s.maxLimit = maxLimit
		}
	}
}

// WithMaxBatchSize caps crews per batch request.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithReference sets the default target score R.
func WithReference(r float64) Option {
	return func(s *Service) {
		if r > 0 {
			s.reference = r
		}
	}
}

// WithIncrement sets the default per-exercise increment d.
func WithIncrement(d float64) Option {
	return func(s *Service) {
		if d > 0 {
			s.increment = d
		}
	}
}

// WithSourceWeights sets per-source default weights and the fallback.
func WithSourceWeights(defaults map[model.SourceType]float64, fallback float64) Option {
	return func(s *Service) {
		if defaults != nil {
			s.sourceWeights = defaults
		}
		if fallback >= 0 {
			s.fallbackWeight = fallback
		}
	}
}

// WithCompetencies sets the configured competency universe.
func WithCompetencies(codes []model.CompetencyCode) Option {
	return func(s *Service) {
		if len(codes) > 0 {
			s.competencies = append([]model.CompetencyCode(nil), codes...)
		}
	}
}

// WithBalanceConfig tunes the Stage 2 optimizer.
func WithBalanceConfig(cfg planner.BalanceConfig) Option {
	return func(s *Service) {
		s.balance = cfg
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the plan id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}
