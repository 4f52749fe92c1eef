// Package weights exposes per-(competency, source) weights with documented
// fallback defaults.
package weights

import "github.com/okian/crewtrain/internal/domain/model"

// Default per-source weights used when the table has no entry.
const (
	DefaultEvalWeight          = 0.4
	DefaultQualificationWeight = 0.3
	DefaultAviationEventWeight = 0.15
	DefaultFlightDataWeight    = 0.15

	// DefaultFallbackWeight applies to sources without a documented default.
	DefaultFallbackWeight = 0.1
)

// DefaultSourceWeights returns a fresh copy of the documented defaults.
func DefaultSourceWeights() map[model.SourceType]float64 {
	return map[model.SourceType]float64{
		model.SourceEval:          DefaultEvalWeight,
		model.SourceQualification: DefaultQualificationWeight,
		model.SourceAviationEvent: DefaultAviationEventWeight,
		model.SourceFlightData:    DefaultFlightDataWeight,
	}
}

// Provider resolves the weight of a source for a competency.
type Provider interface {
	Weight(code model.CompetencyCode, source model.SourceType) float64
}

// Option applies a configuration option to a Table.
type Option func(*Table)

// WithSourceDefaults replaces the per-source defaults. Negative weights are ignored.
func WithSourceDefaults(defaults map[model.SourceType]float64) Option {
	return func(t *Table) {
		if defaults == nil {
			return
		}
		t.defaults = make(map[model.SourceType]float64, len(defaults))
		for source, w := range defaults {
			if w >= 0 {
				t.defaults[source] = w
			}
		}
	}
}

// WithFallback sets the weight used for sources without a default.
func WithFallback(w float64) Option {
	return func(t *Table) {
		if w >= 0 {
			t.fallback = w
		}
	}
}

// Table is an immutable weight lookup built from stored weight rows.
type Table struct {
	entries  map[model.CompetencyCode]map[model.SourceType]float64
	defaults map[model.SourceType]float64
	fallback float64
}

// New builds a Table from weight rows. Later rows for the same key win.
func New(rows []model.CompetencyWeight, opts ...Option) *Table {
	t := &Table{
		entries:  make(map[model.CompetencyCode]map[model.SourceType]float64),
		defaults: DefaultSourceWeights(),
		fallback: DefaultFallbackWeight,
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, row := range rows {
		bySource, ok := t.entries[row.Competency]
		if !ok {
			bySource = make(map[model.SourceType]float64)
			t.entries[row.Competency] = bySource
		}
		bySource[row.Source] = row.Weight
	}
	return t
}

// Weight returns the stored weight, or the source default when absent.
// An explicit zero is honored and is not replaced by the default.
func (t *Table) Weight(code model.CompetencyCode, source model.SourceType) float64 {
	if bySource, ok := t.entries[code]; ok {
		if w, ok := bySource[source]; ok {
			return w
		}
	}
	if w, ok := t.defaults[source]; ok {
		return w
	}
	return t.fallback
}

// Has reports whether the table holds an explicit entry for the key.
func (t *Table) Has(code model.CompetencyCode, source model.SourceType) bool {
	_, ok := t.entries[code][source]
	return ok
}

// Len returns the number of explicit entries.
func (t *Table) Len() int {
	n := 0
	for _, bySource := range t.entries {
		n += len(bySource)
	}
	return n
}
