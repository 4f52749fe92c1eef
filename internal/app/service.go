// Package service builds crew training plans from provider data and
// exposes the operations consumed by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/crewtrain/internal/adapters/repository"
	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/planner"
	"github.com/okian/crewtrain/internal/domain/scoring"
	"github.com/okian/crewtrain/internal/domain/types"
	"github.com/okian/crewtrain/internal/domain/weights"
	"github.com/okian/crewtrain/pkg/logger"
	"github.com/okian/crewtrain/pkg/metrics"
)

// Service implements the planning operations.
type Service struct {
	mu sync.RWMutex

	provider     repository.Provider
	providerName string
	planner      *planner.Planner

	// Configuration
	workerCount    int
	defaultLimit   int
	maxLimit       int
	maxBatch       int
	reference      float64
	increment      float64
	sourceWeights  map[model.SourceType]float64
	fallbackWeight float64
	competencies   []model.CompetencyCode
	balance        planner.BalanceConfig

	// State
	started bool
	planned atomic.Int64
	failed  atomic.Int64

	newID  func() string
	now    func() time.Time
	logger logger.Logger
}

// New constructs a Service with defaults. Start must be called before use.
func New(opts ...Option) *Service {
	s := &Service{
		providerName:   "memory",
		workerCount:    runtime.NumCPU(),
		defaultLimit:   6,
		maxLimit:       50,
		maxBatch:       32,
		reference:      planner.DefaultReference,
		increment:      planner.DefaultIncrement,
		sourceWeights:  weights.DefaultSourceWeights(),
		fallbackWeight: weights.DefaultFallbackWeight,
		competencies:   model.DefaultCompetencies(),
		newID:          func() string { return uuid.NewString() },
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start wires the planner and verifies the provider.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.provider == nil {
		s.provider = repository.NewMemoryStore()
	}

	s.planner = planner.New(
		planner.WithCompetencies(s.competencies),
		planner.WithBalanceConfig(s.balance),
	)

	counts, err := s.provider.Counts(ctx)
	if err != nil {
		metrics.RecordError("service", "provider")
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}

	metrics.UpdateWorkerCount(s.workerCount)
	s.started = true
	s.logger.Info(ctx, "planning service started",
		logger.String("provider", s.providerName),
		logger.Int("workers", s.workerCount),
		logger.Int("pilots", counts.Pilots),
		logger.Int("exercises", counts.Exercises),
		logger.Float64("reference", s.reference),
		logger.Float64("increment", s.increment),
	)
	return nil
}

// Stop closes the provider.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.provider.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing provider failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "planning service stopped")
}

// Plan builds a plan for one crew.
func (s *Service) Plan(ctx context.Context, req types.PlanRequest) (types.Plan, error) {
	if err := s.ready(); err != nil {
		return types.Plan{}, err
	}
	params, err := s.params(req)
	if err != nil {
		s.failed.Add(1)
		metrics.RecordPlan(metrics.OutcomeInvalid)
		return types.Plan{}, err
	}
	catalog, table, err := s.shared(ctx)
	if err != nil {
		s.failed.Add(1)
		metrics.RecordPlan(metrics.OutcomeFailed)
		return types.Plan{}, err
	}
	return s.plan(ctx, req.Pilots, params, catalog, table)
}

// BalanceProblem returns the balance problem of one crew over the whole
// catalog. The benchmark command runs the optimizer on it.
func (s *Service) BalanceProblem(ctx context.Context, req types.PlanRequest) (planner.BalanceProblem, error) {
	if err := s.ready(); err != nil {
		return planner.BalanceProblem{}, err
	}
	params, err := s.params(req)
	if err != nil {
		return planner.BalanceProblem{}, err
	}
	catalog, table, err := s.shared(ctx)
	if err != nil {
		return planner.BalanceProblem{}, err
	}
	pilots, err := s.pilots(ctx, req.Pilots)
	if err != nil {
		return planner.BalanceProblem{}, err
	}
	bp, err := s.planner.Problem(planner.Request{Pilots: pilots, Weights: table, Catalog: catalog, Params: params})
	if err != nil {
		return planner.BalanceProblem{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return bp, nil
}

// PlanBatch plans every crew concurrently, at most workerCount at once.
// The first failure cancels the rest.
func (s *Service) PlanBatch(ctx context.Context, req types.BatchRequest) (types.BatchResponse, error) {
	if err := s.ready(); err != nil {
		return types.BatchResponse{}, err
	}
	if len(req.Crews) == 0 || len(req.Crews) > s.maxBatch {
		return types.BatchResponse{}, fmt.Errorf("%w: batch must hold 1..%d crews", ErrBadRequest, s.maxBatch)
	}
	params := make([]planner.Params, len(req.Crews))
	for i, crew := range req.Crews {
		p, err := s.params(crew)
		if err != nil {
			metrics.RecordPlan(metrics.OutcomeInvalid)
			return types.BatchResponse{}, fmt.Errorf("crew %d: %w", i, err)
		}
		params[i] = p
	}
	metrics.RecordBatchSize(len(req.Crews))

	// One provider snapshot serves the whole batch.
	catalog, table, err := s.shared(ctx)
	if err != nil {
		metrics.RecordPlan(metrics.OutcomeFailed)
		return types.BatchResponse{}, err
	}

	plans := make([]types.Plan, len(req.Crews))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount)
	for i, crew := range req.Crews {
		g.Go(func() error {
			plan, err := s.plan(gctx, crew.Pilots, params[i], catalog, table)
			if err != nil {
				return fmt.Errorf("crew %d: %w", i, err)
			}
			plans[i] = plan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.BatchResponse{}, err
	}
	return types.BatchResponse{Plans: plans}, nil
}

// Averages reports weighted competency averages for each pilot.
func (s *Service) Averages(ctx context.Context, pilots []int64) ([]types.PilotAverages, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(pilots) == 0 || len(pilots) > 2 {
		return nil, fmt.Errorf("%w: one or two pilots required", ErrBadRequest)
	}
	rows, err := s.provider.Weights(ctx)
	if err != nil {
		return nil, s.providerError(ctx, "weights", err)
	}
	agg := scoring.NewAggregator(s.weightTable(rows))

	out := make([]types.PilotAverages, len(pilots))
	for i, id := range pilots {
		scores, err := s.provider.Scores(ctx, model.PilotID(id))
		if err != nil {
			return nil, s.providerError(ctx, "scores", err)
		}
		out[i] = types.NewPilotAverages(id, s.competencies, agg.Aggregate(scores))
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.ServiceStats{
		Started:      s.started,
		Provider:     s.providerName,
		WorkerCount:  s.workerCount,
		DefaultLimit: s.defaultLimit,
		MaxPlanLimit: s.maxLimit,
		Planned:      s.planned.Load(),
		Failed:       s.failed.Load(),
	}
	if s.started {
		if c, err := s.provider.Counts(ctx); err == nil {
			stats.Pilots, stats.Scores, stats.Weights, stats.Exercises = c.Pilots, c.Scores, c.Weights, c.Exercises
		}
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// params resolves request defaults and checks bounds the validator
// cannot know about.
func (s *Service) params(req types.PlanRequest) (planner.Params, error) {
	if len(req.Pilots) == 0 || len(req.Pilots) > 2 {
		return planner.Params{}, fmt.Errorf("%w: one or two pilots required", ErrBadRequest)
	}
	if len(req.Pilots) == 2 && req.Pilots[0] == req.Pilots[1] {
		return planner.Params{}, fmt.Errorf("%w: pilots must differ", ErrBadRequest)
	}
	p := planner.Params{Reference: s.reference, Increment: s.increment, Limit: s.defaultLimit}
	if req.Limit != nil {
		p.Limit = *req.Limit
	}
	if req.Reference != nil {
		p.Reference = *req.Reference
	}
	if req.Increment != nil {
		p.Increment = *req.Increment
	}
	switch {
	case p.Limit < 0 || p.Limit > s.maxLimit:
		return planner.Params{}, fmt.Errorf("%w: limit must be in 0..%d", ErrBadRequest, s.maxLimit)
	case p.Reference <= 0 || p.Reference > planner.MaxScore:
		return planner.Params{}, fmt.Errorf("%w: reference must be in (0,5]", ErrBadRequest)
	case p.Increment <= 0:
		return planner.Params{}, fmt.Errorf("%w: increment must be positive", ErrBadRequest)
	}
	return p, nil
}

// shared reads the inputs common to every crew.
func (s *Service) shared(ctx context.Context) ([]model.Exercise, *weights.Table, error) {
	catalog, err := s.provider.Catalog(ctx)
	if err != nil {
		return nil, nil, s.providerError(ctx, "catalog", err)
	}
	rows, err := s.provider.Weights(ctx)
	if err != nil {
		return nil, nil, s.providerError(ctx, "weights", err)
	}
	return catalog, s.weightTable(rows), nil
}

func (s *Service) plan(ctx context.Context, ids []int64, params planner.Params, catalog []model.Exercise, table *weights.Table) (types.Plan, error) {
	start := s.now()

	pilots, err := s.pilots(ctx, ids)
	if err != nil {
		s.failed.Add(1)
		metrics.RecordPlan(metrics.OutcomeFailed)
		return types.Plan{}, err
	}

	res, err := s.planner.Plan(planner.Request{Pilots: pilots, Weights: table, Catalog: catalog, Params: params})
	if err != nil {
		s.failed.Add(1)
		metrics.RecordPlan(metrics.OutcomeInvalid)
		return types.Plan{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	elapsed := s.now().Sub(start)
	plan := types.NewPlan(s.newID(), ids, params, res, start)
	s.planned.Add(1)
	s.record(ctx, plan, elapsed)
	return plan, nil
}

// pilots loads the score history of every crew member.
func (s *Service) pilots(ctx context.Context, ids []int64) ([]planner.Pilot, error) {
	out := make([]planner.Pilot, len(ids))
	for i, id := range ids {
		scores, err := s.provider.Scores(ctx, model.PilotID(id))
		if err != nil {
			return nil, s.providerError(ctx, "scores", err)
		}
		out[i] = planner.Pilot{ID: model.PilotID(id), Scores: scores}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, plan types.Plan, elapsed time.Duration) {
	metrics.RecordPlan(metrics.OutcomeOK)
	metrics.RecordPlanDuration(float64(elapsed.Microseconds()) / 1000)
	_ = metrics.RecordExercisesSelected(metrics.StageGreedy, plan.Stats.Greedy)
	_ = metrics.RecordExercisesSelected(metrics.StageBalance, plan.Stats.Balance)
	_ = metrics.RecordExercisesSelected(metrics.StagePadding, plan.Stats.Padding)
	if plan.Stats.BalanceFallback {
		metrics.RecordBalanceFallback()
		s.logger.Warn(ctx, "balance optimizer fell back to padding", logger.String("plan_id", plan.ID))
	}
	s.logger.Info(ctx, "plan built",
		logger.String("plan_id", plan.ID),
		logger.Any("pilots", plan.Pilots),
		logger.Int("limit", plan.Limit),
		logger.Int("greedy", plan.Stats.Greedy),
		logger.Int("balance", plan.Stats.Balance),
		logger.Int("padding", plan.Stats.Padding),
		logger.Duration("duration", elapsed),
	)
}

func (s *Service) weightTable(rows []model.CompetencyWeight) *weights.Table {
	return weights.New(rows,
		weights.WithSourceDefaults(s.sourceWeights),
		weights.WithFallback(s.fallbackWeight),
	)
}

func (s *Service) providerError(ctx context.Context, query string, err error) error {
	if errors.Is(err, repository.ErrUnknownPilot) {
		return err
	}
	metrics.RecordError("service", "provider")
	s.logger.Error(ctx, "provider query failed", logger.String("query", query), logger.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrProvider, query, err)
}
