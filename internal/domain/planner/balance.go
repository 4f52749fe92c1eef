package planner

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Balance optimizer defaults.
const (
	DefaultGamma         = 10.0
	DefaultIterations    = 2000
	DefaultSimplexSize   = 0.25
	bisectionSteps       = 60
	convergeIterations   = 200
	convergeTolerance    = 1e-10
	evaluationMultiplier = 4
)

// BalanceConfig configures the Stage 2 optimizer.
// Zero values are replaced with defaults.
type BalanceConfig struct {
	Gamma       float64 `json:"gamma"`        // softmin sharpness, default 10
	Iterations  int     `json:"iterations"`   // major iterations, default 2000
	SimplexSize float64 `json:"simplex_size"` // initial Nelder-Mead simplex edge, default 0.25
}

// BalanceProblem is the continuous relaxation handed to the optimizer.
type BalanceProblem struct {
	// A is K x M: A[k][j] is 1 when exercise j develops the competency of pair k.
	A [][]float64
	// S0 holds the current score of every pair, in [0,5].
	S0 []float64
	// D is the increment delivered by one execution.
	D float64
	// L is the number of slots to distribute.
	L int
}

// Dims returns the pair and exercise counts.
func (p BalanceProblem) Dims() (k, m int) {
	k = len(p.S0)
	if k > 0 && len(p.A) > 0 {
		m = len(p.A[0])
	}
	return k, m
}

// Cap returns min(L, M), the number of exercises that can be chosen.
func (p BalanceProblem) Cap() int {
	_, m := p.Dims()
	if p.L < m {
		return p.L
	}
	return m
}

// Scores projects pair scores for a selection vector z, capped at MaxScore.
func (p BalanceProblem) Scores(z []float64) []float64 {
	out := make([]float64, len(p.S0))
	for k, s0 := range p.S0 {
		out[k] = math.Min(MaxScore, s0+p.D*floats.Dot(p.A[k], z))
	}
	return out
}

// BalanceSolution is the rounded optimizer output.
type BalanceSolution struct {
	Counts []int     // 0/1 per exercise, summing to Cap()
	Z      []float64 // continuous optimum on the capped simplex
	Value  float64   // softmin of projected scores at Z
}

// BalanceOptimizer maximizes the softmin of projected scores with a
// deterministic derivative-free local search.
type BalanceOptimizer struct {
	gamma       float64
	iterations  int
	simplexSize float64
}

// NewBalanceOptimizer creates an optimizer with the given config.
func NewBalanceOptimizer(cfg BalanceConfig) *BalanceOptimizer {
	o := &BalanceOptimizer{
		gamma:       cfg.Gamma,
		iterations:  cfg.Iterations,
		simplexSize: cfg.SimplexSize,
	}
	if o.gamma <= 0 {
		o.gamma = DefaultGamma
	}
	if o.iterations <= 0 {
		o.iterations = DefaultIterations
	}
	if o.simplexSize <= 0 {
		o.simplexSize = DefaultSimplexSize
	}
	return o
}

// Gamma returns the softmin sharpness in use.
func (o *BalanceOptimizer) Gamma() float64 { return o.gamma }

// Solve distributes Cap() slots over the problem's exercises. It returns
// ErrDegenerate when the optimizer yields non-finite values.
func (o *BalanceOptimizer) Solve(p BalanceProblem) (BalanceSolution, error) {
	k, m := p.Dims()
	if k == 0 || m == 0 || p.L <= 0 {
		return BalanceSolution{Counts: make([]int, m), Z: make([]float64, m)}, nil
	}
	if !finite(p.S0) || math.IsNaN(p.D) || math.IsInf(p.D, 0) {
		return BalanceSolution{}, fmt.Errorf("%w: non-finite input", ErrDegenerate)
	}
	target := p.Cap()

	objective := func(y []float64) float64 {
		v := -Softmin(p.Scores(ProjectCappedSimplex(y, float64(target))), o.gamma)
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	x0 := make([]float64, m)
	for j := range x0 {
		x0[j] = float64(target) / float64(m)
	}

	settings := &optimize.Settings{
		MajorIterations: o.iterations,
		FuncEvaluations: o.iterations * evaluationMultiplier,
		Converger: &optimize.FunctionConverge{
			Absolute:   convergeTolerance,
			Relative:   convergeTolerance,
			Iterations: convergeIterations,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: objective}, x0, settings, &optimize.NelderMead{SimplexSize: o.simplexSize})
	if res == nil {
		return BalanceSolution{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	if !finite(res.X) {
		return BalanceSolution{}, fmt.Errorf("%w: non-finite optimum", ErrDegenerate)
	}

	z := ProjectCappedSimplex(res.X, float64(target))
	if !finite(z) {
		return BalanceSolution{}, fmt.Errorf("%w: non-finite projection", ErrDegenerate)
	}
	return BalanceSolution{
		Counts: RoundToSum(z, target),
		Z:      z,
		Value:  Softmin(p.Scores(z), o.gamma),
	}, nil
}

// Softmin is a numerically stable smooth lower envelope of v:
// min(v) - log(sum(exp(-gamma*(v_i - min(v))))) / gamma.
func Softmin(v []float64, gamma float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := floats.Min(v)
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(-gamma * (x - m))
	}
	return m - math.Log(sum)/gamma
}

// ProjectCappedSimplex maps y onto {z in [0,1]^M : sum(z) = target} via
// z_j = clamp(y_j - t, 0, 1), with t found by bisection.
func ProjectCappedSimplex(y []float64, target float64) []float64 {
	if len(y) == 0 {
		return nil
	}
	lo := floats.Min(y) - 1 // every z_j = 1
	hi := floats.Max(y)     // every z_j = 0
	for i := 0; i < bisectionSteps; i++ {
		mid := (lo + hi) / 2
		if clipSum(y, mid) > target {
			lo = mid
		} else {
			hi = mid
		}
	}
	t := (lo + hi) / 2
	z := make([]float64, len(y))
	for j, v := range y {
		z[j] = clamp01(v - t)
	}
	return z
}

// RoundToSum rounds z in [0,1]^M to 0/1 counts summing exactly to target.
// A shortfall goes to the largest fractional parts first, an excess is
// taken from the smallest; ties go to the lower index.
func RoundToSum(z []float64, target int) []int {
	counts := make([]int, len(z))
	frac := make([]float64, len(z))
	sum := 0
	for j, v := range z {
		f := math.Floor(v)
		counts[j] = int(math.Max(0, math.Min(1, f)))
		frac[j] = v - f
		sum += counts[j]
	}

	order := make([]int, len(z))
	for j := range order {
		order[j] = j
	}

	switch short := target - sum; {
	case short > 0:
		sort.SliceStable(order, func(a, b int) bool { return frac[order[a]] > frac[order[b]] })
		for _, j := range order {
			if short == 0 {
				break
			}
			if counts[j] == 0 {
				counts[j] = 1
				short--
			}
		}
	case short < 0:
		sort.SliceStable(order, func(a, b int) bool { return frac[order[a]] < frac[order[b]] })
		for _, j := range order {
			if short == 0 {
				break
			}
			if counts[j] > 0 {
				counts[j]--
				short++
			}
		}
	}
	return counts
}

func clipSum(y []float64, t float64) float64 {
	s := 0.0
	for _, v := range y {
		s += clamp01(v - t)
	}
	return s
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
