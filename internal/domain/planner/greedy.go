package planner

import (
	"math"

	"github.com/okian/crewtrain/internal/domain/model"
)

// gainEpsilon separates real gain differences from float residue.
const gainEpsilon = 1e-12

// candidate is an unused exercise scored against the current deficits.
type candidate struct {
	exercise model.Exercise
	tier     int // 0 covers a worst code, 1 fallback
	gain     float64
	coverage int
}

// better reports whether c ranks above o: higher gain, then wider
// coverage, then lower id.
func (c candidate) better(o candidate) bool {
	if math.Abs(c.gain-o.gain) > gainEpsilon {
		return c.gain > o.gain
	}
	if c.coverage != o.coverage {
		return c.coverage > o.coverage
	}
	return c.exercise.ID < o.exercise.ID
}

// closeDeficits runs Stage 1 over catalog (ascending id) until the plan
// reaches limit, no deficit remains, or no candidate has positive gain.
// It returns the number of exercises picked.
func (s *state) closeDeficits(catalog []model.Exercise, limit int) int {
	picked := 0
	for len(s.items) < limit {
		open := s.deficient()
		if len(open) == 0 {
			break
		}
		best, ok := s.bestCandidate(catalog, open)
		if !ok || best.gain <= gainEpsilon {
			break
		}
		s.applyClosing(best.exercise)
		picked++
	}
	return picked
}

// bestCandidate selects from the first non-empty candidate pool.
func (s *state) bestCandidate(catalog []model.Exercise, open []PairKey) (candidate, bool) {
	worst := 0.0
	for _, k := range open {
		worst = math.Max(worst, s.deficit[k])
	}
	worstCodes := make(map[model.CompetencyCode]bool)
	openCodes := make(map[model.CompetencyCode]bool)
	for _, k := range open {
		openCodes[k.Competency] = true
		if s.deficit[k] >= worst-deficitEpsilon {
			worstCodes[k.Competency] = true
		}
	}

	var (
		best  candidate
		found bool
	)
	for _, ex := range catalog {
		if s.used[ex.ID] {
			continue
		}
		c := s.score(ex, open, worstCodes, openCodes)
		switch {
		case !found, c.tier < best.tier:
			best, found = c, true
		case c.tier == best.tier && c.better(best):
			best = c
		}
	}
	return best, found
}

// score computes pool tier, expected gain and coverage for ex.
func (s *state) score(ex model.Exercise, open []PairKey, worstCodes, openCodes map[model.CompetencyCode]bool) candidate {
	c := candidate{exercise: ex, tier: 1}
	coversWorst := false
	seen := make(map[model.CompetencyCode]bool, len(ex.Competencies))
	for _, code := range ex.Competencies {
		if seen[code] {
			continue
		}
		seen[code] = true
		if worstCodes[code] {
			coversWorst = true
		}
		if openCodes[code] {
			c.coverage++
		}
	}
	// Worst codes are a subset of open codes, so reaching a worst code
	// already counts as dual coverage. Gain and coverage rank within the pool.
	if coversWorst {
		c.tier = 0
	}
	for _, k := range open {
		if seen[k.Competency] {
			c.gain += math.Min(s.deficit[k], s.increment)
		}
	}
	return c
}
