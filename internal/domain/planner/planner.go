// Package planner selects a bounded, ordered set of training exercises that
// first closes the largest competency deficits and then balances the
// remaining budget across every competency of one or two pilots.
//
// A planning call is a pure function of its Request. All working state is
// created per call, so concurrent calls need no coordination.
package planner

import (
	"fmt"

	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/scoring"
	"github.com/okian/crewtrain/internal/domain/weights"
)

// Default planning parameters.
const (
	DefaultReference = 3.5
	DefaultIncrement = 0.1
	defaultPrecision = 2
	maxPilots        = 2
)

// Stage tells which step of the plan picked an exercise.
type Stage int

// Planning stages.
const (
	StageGreedy Stage = iota
	StageBalance
	StagePadding
)

func (s Stage) String() string {
	switch s {
	case StageGreedy:
		return "greedy"
	case StageBalance:
		return "balance"
	case StagePadding:
		return "padding"
	}
	return "unknown"
}

// Pilot is one planning subject with its raw score history.
type Pilot struct {
	ID     model.PilotID
	Scores []model.RawScore
}

// Params are the per-invocation tuning inputs.
type Params struct {
	Reference float64 // target score R
	Increment float64 // score gained per execution d
	Limit     int     // slot budget
}

// Request is the full input of a planning call.
type Request struct {
	Pilots  []Pilot
	Weights weights.Provider // nil means documented defaults only
	Catalog []model.Exercise
	Params
}

// Item is one plan entry.
type Item struct {
	Exercise model.Exercise
	Stage    Stage
}

// Projection is the before/after score of one pair.
type Projection struct {
	Pilot      model.PilotID
	Competency model.CompetencyCode
	Before     float64
	After      float64
	Deficit    float64 // remaining shortfall after the plan
}

// Stats summarizes how the plan was assembled.
type Stats struct {
	Greedy          int
	Balance         int
	Padding         int
	BalanceValue    float64 // softmin at the Stage 2 continuous optimum
	BalanceFallback bool    // Stage 2 output was degenerate and skipped
}

// Result is the planner output.
type Result struct {
	Items       []Item
	Development Development
	Projections []Projection
	Stats       Stats
}

// IDs returns the planned exercise ids in order.
func (r Result) IDs() []int64 {
	ids := make([]int64, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.Exercise.ID
	}
	return ids
}

// Planner holds tuning knobs shared across calls. It is safe for
// concurrent use.
type Planner struct {
	competencies []model.CompetencyCode
	precision    int
	balancer     *BalanceOptimizer
}

// New creates a Planner.
func New(opts ...Option) *Planner {
	p := &Planner{
		competencies: model.DefaultCompetencies(),
		precision:    defaultPrecision,
		balancer:     NewBalanceOptimizer(BalanceConfig{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan builds a plan of min(Limit, catalog size) distinct exercises.
func (p *Planner) Plan(req Request) (Result, error) {
	st, catalog, limit, err := p.prepare(req)
	if err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		return Result{Development: make(Development)}, nil
	}

	var stats Stats
	stats.Greedy = st.closeDeficits(catalog, limit)
	stats.Balance, stats.BalanceValue, stats.BalanceFallback = p.balance(st, catalog, limit)
	stats.Padding = st.pad(catalog, limit)

	return Result{
		Items:       st.items,
		Development: st.dev,
		Projections: st.projections(),
		Stats:       stats,
	}, nil
}

// Problem returns the balance problem of req over the whole catalog, as
// Stage 2 would see it with Stage 1 skipped. Benchmarks run on it.
func (p *Planner) Problem(req Request) (BalanceProblem, error) {
	st, catalog, limit, err := p.prepare(req)
	if err != nil {
		return BalanceProblem{}, err
	}
	return st.problem(catalog, max(limit, 0)), nil
}

// prepare aggregates scores and seeds the planning state.
func (p *Planner) prepare(req Request) (*state, []model.Exercise, int, error) {
	if len(req.Pilots) == 0 || len(req.Pilots) > maxPilots {
		return nil, nil, 0, fmt.Errorf("%w: got %d", ErrPilotCount, len(req.Pilots))
	}

	catalog := distinctCatalog(req.Catalog)
	limit := min(req.Limit, len(catalog))

	w := req.Weights
	if w == nil {
		w = weights.New(nil)
	}
	agg := scoring.NewAggregator(w, scoring.WithPrecision(p.precision))

	ids := make([]model.PilotID, len(req.Pilots))
	averages := make([]scoring.Averages, len(req.Pilots))
	for i, pilot := range req.Pilots {
		ids[i] = pilot.ID
		averages[i] = agg.Aggregate(pilot.Scores)
	}
	return newState(ids, averages, p.universe(catalog, averages), req.Reference, req.Increment), catalog, limit, nil
}

// balance runs Stage 2 over the unused exercises.
func (p *Planner) balance(st *state, catalog []model.Exercise, limit int) (int, float64, bool) {
	remaining := limit - len(st.items)
	if remaining <= 0 {
		return 0, 0, false
	}
	var unused []model.Exercise
	for _, ex := range catalog {
		if !st.used[ex.ID] {
			unused = append(unused, ex)
		}
	}
	if len(unused) == 0 {
		return 0, 0, false
	}

	sol, err := p.balancer.Solve(st.problem(unused, remaining))
	if err != nil {
		return 0, 0, true
	}
	picked := 0
	for j, ex := range unused {
		if sol.Counts[j] > 0 {
			st.applyFull(ex, StageBalance)
			picked++
		}
	}
	return picked, sol.Value, false
}

// problem maps the current scores onto a BalanceProblem over exercises.
func (s *state) problem(exercises []model.Exercise, limit int) BalanceProblem {
	bp := BalanceProblem{
		A:  make([][]float64, len(s.keys)),
		S0: make([]float64, len(s.keys)),
		D:  s.increment,
		L:  limit,
	}
	for k, key := range s.keys {
		row := make([]float64, len(exercises))
		for j, ex := range exercises {
			if ex.Develops(key.Competency) {
				row[j] = 1
			}
		}
		bp.A[k] = row
		bp.S0[k] = s.current[key]
	}
	return bp
}

// pad appends still-unused exercises in id order until limit.
func (s *state) pad(catalog []model.Exercise, limit int) int {
	padded := 0
	for _, ex := range catalog {
		if len(s.items) >= limit {
			break
		}
		if s.used[ex.ID] {
			continue
		}
		s.applyFull(ex, StagePadding)
		padded++
	}
	return padded
}

func (s *state) projections() []Projection {
	out := make([]Projection, len(s.keys))
	for i, k := range s.keys {
		out[i] = Projection{
			Pilot:      s.pilots[k.Slot],
			Competency: k.Competency,
			Before:     s.initial[k],
			After:      s.current[k],
			Deficit:    s.deficit[k],
		}
	}
	return out
}

// universe returns the sorted competencies tracked in this run.
func (p *Planner) universe(catalog []model.Exercise, averages []scoring.Averages) []model.CompetencyCode {
	set := make(map[model.CompetencyCode]bool)
	for _, c := range p.competencies {
		set[c] = true
	}
	for _, ex := range catalog {
		for _, c := range ex.Competencies {
			set[c] = true
		}
	}
	for _, avg := range averages {
		for c := range avg {
			set[c] = true
		}
	}
	codes := make([]model.CompetencyCode, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	model.SortCodes(codes)
	return codes
}

// distinctCatalog copies the catalog sorted by id with duplicate ids dropped.
func distinctCatalog(in []model.Exercise) []model.Exercise {
	out := make([]model.Exercise, 0, len(in))
	seen := make(map[int64]bool, len(in))
	for _, ex := range in {
		if seen[ex.ID] {
			continue
		}
		seen[ex.ID] = true
		out = append(out, ex)
	}
	model.SortExercises(out)
	return out
}
