// Package scoring turns raw per-source assessments into one weighted average
// per pilot per competency.
package scoring

import (
	"math"

	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/weights"
)

// Default aggregation constants.
const (
	defaultPrecision = 2
	maxPrecision     = 6
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithPrecision sets the number of decimals averages are rounded to.
func WithPrecision(decimals int) Option {
	return func(a *Aggregator) {
		if decimals >= 0 && decimals <= maxPrecision {
			a.precision = decimals
		}
	}
}

// Average is the weighted average for one competency. Defined is false when
// no source with positive weight has a score.
type Average struct {
	Competency model.CompetencyCode
	Value      float64
	Defined    bool
}

// Averages maps competency codes to their weighted averages for one pilot.
// Only defined averages are present.
type Averages map[model.CompetencyCode]float64

// Aggregator computes weighted averages from raw scores.
type Aggregator struct {
	weights   weights.Provider
	precision int
}

// NewAggregator creates an aggregator reading weights from w.
func NewAggregator(w weights.Provider, opts ...Option) *Aggregator {
	a := &Aggregator{
		weights:   w,
		precision: defaultPrecision,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type sourceKey struct {
	code   model.CompetencyCode
	source model.SourceType
}

// Aggregate computes the weighted average per competency for one pilot's
// scores. When several scores share a (competency, source) the latest date
// wins; equal dates keep the later entry.
func (a *Aggregator) Aggregate(scores []model.RawScore) Averages {
	latest := make(map[sourceKey]model.RawScore)
	for _, s := range scores {
		k := sourceKey{code: s.Competency, source: s.Source}
		if prev, ok := latest[k]; ok && s.Date.Before(prev.Date) {
			continue
		}
		latest[k] = s
	}

	sums := make(map[model.CompetencyCode]float64)
	totals := make(map[model.CompetencyCode]float64)
	for k, s := range latest {
		w := a.weights.Weight(k.code, k.source)
		if w <= 0 {
			continue
		}
		sums[k.code] += float64(s.Score) * w
		totals[k.code] += w
	}

	out := make(Averages, len(totals))
	for code, total := range totals {
		out[code] = a.round(sums[code] / total)
	}
	return out
}

// Lookup returns the average for code as an Average value.
func (avg Averages) Lookup(code model.CompetencyCode) Average {
	v, ok := avg[code]
	return Average{Competency: code, Value: v, Defined: ok}
}

func (a *Aggregator) round(v float64) float64 {
	p := math.Pow(10, float64(a.precision))
	return math.Round(v*p) / p
}
