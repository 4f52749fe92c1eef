package planner

import "github.com/okian/crewtrain/internal/domain/model"

// Option applies a configuration option to the Planner.
type Option func(*Planner)

// WithCompetencies sets the competencies every pilot is tracked on, in
// addition to those found in the catalog and in the scores.
func WithCompetencies(codes []model.CompetencyCode) Option {
	return func(p *Planner) {
		if len(codes) > 0 {
			p.competencies = append([]model.CompetencyCode(nil), codes...)
		}
	}
}

// WithPrecision sets the decimals used when aggregating averages.
func WithPrecision(decimals int) Option {
	return func(p *Planner) {
		if decimals >= 0 {
			p.precision = decimals
		}
	}
}

// WithBalanceConfig configures the Stage 2 optimizer.
func WithBalanceConfig(cfg BalanceConfig) Option {
	return func(p *Planner) {
		p.balancer = NewBalanceOptimizer(cfg)
	}
}
