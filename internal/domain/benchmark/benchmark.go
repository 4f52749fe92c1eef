// Package benchmark measures Stage 2 selections offline. It compares the
// balance optimizer against a greedy softmin baseline and the median of
// random feasible selections. Nothing on the planning path imports it.
package benchmark

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/crewtrain/internal/domain/planner"
)

// DefaultLambda weighs constraint violations in Penalty.
const DefaultLambda = 2000.0

// ErrNoTrials is returned when Compare is asked for zero random trials.
var ErrNoTrials = errors.New("benchmark: trials must be positive")

// SampleProblem is a small fixed problem: three pairs, five exercises,
// two slots. It is used when no crew data is at hand.
func SampleProblem() planner.BalanceProblem {
	return planner.BalanceProblem{
		A: [][]float64{
			{1, 0, 1, 1, 0},
			{0, 1, 1, 0, 1},
			{1, 1, 0, 0, 0},
		},
		S0: []float64{3.0, 3.7, 4.2},
		D:  0.5,
		L:  2,
	}
}

// Metrics describes one integer selection.
type Metrics struct {
	Feasible      bool    `json:"feasible"`
	Penalty       float64 `json:"penalty"`
	SoftminBefore float64 `json:"softmin_before"`
	SoftminAfter  float64 `json:"softmin_after"`
	MinBefore     float64 `json:"min_before"`
	MinAfter      float64 `json:"min_after"`
}

// Report is the outcome of Compare.
type Report struct {
	Optimizer    Metrics `json:"optimizer"`
	Greedy       Metrics `json:"greedy"`
	RandomMedian Metrics `json:"random_median"`
	Counts       []int   `json:"counts"`
	Trials       int     `json:"trials"`
}

// Evaluate scores counts against p. Penalty is
// lambda*|sum(counts) - Cap| + lambda*sum(max(0, count-1)).
func Evaluate(p planner.BalanceProblem, counts []int, gamma, lambda float64) Metrics {
	_, m := p.Dims()
	target := p.Cap()

	z := make([]float64, m)
	sum, over := 0, 0
	for j := 0; j < m && j < len(counts); j++ {
		z[j] = float64(counts[j])
		sum += counts[j]
		if counts[j] > 1 {
			over += counts[j] - 1
		}
	}
	feasible := len(counts) == m && sum == target && over == 0
	for _, c := range counts {
		if c < 0 {
			feasible = false
		}
	}

	before := append([]float64(nil), p.S0...)
	after := p.Scores(z)
	mt := Metrics{
		Feasible:      feasible,
		Penalty:       lambda*float64(abs(sum-target)) + lambda*float64(over),
		SoftminBefore: planner.Softmin(before, gamma),
		SoftminAfter:  planner.Softmin(after, gamma),
	}
	if len(before) > 0 {
		mt.MinBefore = floats.Min(before)
		mt.MinAfter = floats.Min(after)
	}
	return mt
}

// Greedy picks Cap exercises one at a time, each maximizing the softmin of
// projected scores. Ties go to the lower index.
func Greedy(p planner.BalanceProblem, gamma float64) []int {
	_, m := p.Dims()
	counts := make([]int, m)
	z := make([]float64, m)
	for n := 0; n < p.Cap(); n++ {
		best, bestValue := -1, 0.0
		for j := 0; j < m; j++ {
			if counts[j] > 0 {
				continue
			}
			z[j] = 1
			v := planner.Softmin(p.Scores(z), gamma)
			z[j] = 0
			if best < 0 || v > bestValue {
				best, bestValue = j, v
			}
		}
		if best < 0 {
			break
		}
		counts[best], z[best] = 1, 1
	}
	return counts
}

// Random picks Cap distinct exercises uniformly using rng.
func Random(p planner.BalanceProblem, rng *rand.Rand) []int {
	_, m := p.Dims()
	counts := make([]int, m)
	if p.Cap() <= 0 {
		return counts
	}
	for _, j := range rng.Perm(m)[:p.Cap()] {
		counts[j] = 1
	}
	return counts
}

// Compare runs the optimizer, the greedy baseline and trials random
// selections on p. The random entry is the median-softmin trial.
func Compare(p planner.BalanceProblem, opt *planner.BalanceOptimizer, lambda float64, trials int, rng *rand.Rand) (Report, error) {
	if trials <= 0 {
		return Report{}, ErrNoTrials
	}
	gamma := opt.Gamma()

	sol, err := opt.Solve(p)
	if err != nil {
		return Report{}, fmt.Errorf("benchmark: solve: %w", err)
	}

	runs := make([]Metrics, trials)
	for i := range runs {
		runs[i] = Evaluate(p, Random(p, rng), gamma, lambda)
	}
	sort.SliceStable(runs, func(a, b int) bool { return runs[a].SoftminAfter < runs[b].SoftminAfter })
	values := make([]float64, trials)
	for i, r := range runs {
		values[i] = r.SoftminAfter
	}
	median := stat.Quantile(0.5, stat.Empirical, values, nil)
	idx := sort.SearchFloat64s(values, median)

	return Report{
		Optimizer:    Evaluate(p, sol.Counts, gamma, lambda),
		Greedy:       Evaluate(p, Greedy(p, gamma), gamma, lambda),
		RandomMedian: runs[idx],
		Counts:       sol.Counts,
		Trials:       trials,
	}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
