package planner

import (
	"math"

	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/scoring"
)

// Scoring scale bounds.
const (
	MaxScore = 5.0
	MinScore = 0.0

	// deficitEpsilon is the magnitude below which a deficit counts as closed.
	deficitEpsilon = 1e-9
)

// PairKey identifies one (pilot slot, competency) planning cell.
type PairKey struct {
	Slot       int
	Competency model.CompetencyCode
}

// Development reports the accumulated increment per pilot per competency.
type Development map[model.PilotID]map[model.CompetencyCode]float64

// state is owned by a single planning call.
type state struct {
	pilots    []model.PilotID
	keys      []PairKey
	increment float64

	deficit map[PairKey]float64
	current map[PairKey]float64
	initial map[PairKey]float64
	dev     Development
	used    map[int64]bool
	items   []Item
}

// newState seeds deficits and current scores from each slot's averages
// (the deficit model). Undefined averages sit exactly at the reference.
func newState(pilots []model.PilotID, averages []scoring.Averages, codes []model.CompetencyCode, reference, increment float64) *state {
	s := &state{
		pilots:    pilots,
		increment: increment,
		deficit:   make(map[PairKey]float64),
		current:   make(map[PairKey]float64),
		initial:   make(map[PairKey]float64),
		dev:       make(Development),
		used:      make(map[int64]bool),
	}
	for slot := range pilots {
		for _, code := range codes {
			k := PairKey{Slot: slot, Competency: code}
			avg := averages[slot].Lookup(code)
			value := reference
			if avg.Defined {
				value = avg.Value
			}
			s.keys = append(s.keys, k)
			s.deficit[k] = snap(math.Max(0, reference-value))
			s.current[k] = clampScore(value)
			s.initial[k] = s.current[k]
		}
	}
	return s
}

// deficient returns the keys with a positive deficit, in key order.
func (s *state) deficient() []PairKey {
	var out []PairKey
	for _, k := range s.keys {
		if s.deficit[k] > 0 {
			out = append(out, k)
		}
	}
	return out
}

// applyClosing records a Stage 1 pick: each deficient covered pair gains
// min(deficit, d).
func (s *state) applyClosing(ex model.Exercise) {
	for _, k := range s.keys {
		def := s.deficit[k]
		if def <= 0 || !ex.Develops(k.Competency) {
			continue
		}
		inc := math.Min(def, s.increment)
		s.deficit[k] = snap(def - inc)
		s.raise(k, inc)
	}
	s.record(ex, StageGreedy)
}

// applyFull records a Stage 2 or padding pick: every covered pair gains d.
func (s *state) applyFull(ex model.Exercise, stage Stage) {
	for _, k := range s.keys {
		if !ex.Develops(k.Competency) {
			continue
		}
		if def := s.deficit[k]; def > 0 {
			s.deficit[k] = snap(def - math.Min(def, s.increment))
		}
		s.raise(k, s.increment)
	}
	s.record(ex, stage)
}

// raise lifts the current score by inc, capped at MaxScore, and tracks
// the realized increment.
func (s *state) raise(k PairKey, inc float64) {
	cur := s.current[k]
	realized := math.Min(inc, MaxScore-cur)
	if realized <= 0 {
		return
	}
	s.current[k] = math.Min(MaxScore, cur+realized)
	pilot := s.pilots[k.Slot]
	byCode, ok := s.dev[pilot]
	if !ok {
		byCode = make(map[model.CompetencyCode]float64)
		s.dev[pilot] = byCode
	}
	byCode[k.Competency] += realized
}

func (s *state) record(ex model.Exercise, stage Stage) {
	s.used[ex.ID] = true
	s.items = append(s.items, Item{Exercise: ex, Stage: stage})
}

func snap(v float64) float64 {
	if v < deficitEpsilon {
		return 0
	}
	return v
}

func clampScore(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
