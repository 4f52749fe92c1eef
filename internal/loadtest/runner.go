// Package loadtest drives a running planner over HTTP with generated crews
// and checks every returned plan.
package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/crewtrain/internal/domain/types"
	"github.com/okian/crewtrain/pkg/logger"
)

// Runner defaults.
const (
	workerChannelMultiplier = 2
	directoryPermission     = 0o750
	filePermission          = 0o600
)

// Sentinel errors.
var (
	ErrNoPilots    = errors.New("no pilots to draw crews from")
	ErrUnhealthy   = errors.New("service health check failed")
	ErrInvalidPlan = errors.New("service returned invalid plans")
)

// Run executes a complete load run and returns its statistics. A run
// that observes invalid or non-deterministic plans returns ErrInvalidPlan
// together with the stats.
func Run(ctx context.Context, cfg *Config) (Stats, error) {
	if len(cfg.Pilots) == 0 {
		return Stats{}, ErrNoPilots
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	log := logger.Named("loadtest")
	start := time.Now()

	log.Info(ctx, "starting plan load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("requests", cfg.Requests),
		logger.Int("pilots", len(cfg.Pilots)),
		logger.Int("workers", cfg.Workers))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := checkServiceHealth(ctx, client); err != nil {
		return Stats{}, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	requests := generateRequests(cfg, rng)
	stats := Stats{Generated: len(requests)}

	results := submitRequests(ctx, client, cfg.Workers, requests)
	collect(&stats, results)

	replayed, mismatched := replay(ctx, client, cfg.Replays, requests, results)
	stats.Replayed, stats.Mismatched = replayed, mismatched

	if cfg.OutputFile != "" {
		if err := saveRequests(cfg.OutputFile, requests); err != nil {
			log.Warn(ctx, "failed to save requests", logger.Error(err))
		}
	}

	stats.Duration = time.Since(start)
	displayFinalStats(ctx, log, stats)

	if stats.Invalid > 0 || stats.Mismatched > 0 {
		return stats, fmt.Errorf("%w: %d invalid, %d non-deterministic", ErrInvalidPlan, stats.Invalid, stats.Mismatched)
	}
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, _, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

// submitRequests posts every request through a fixed worker pool and
// returns results in request order.
func submitRequests(ctx context.Context, client *HTTPClient, workers int, requests []types.PlanRequest) []result {
	results := make([]result, len(requests))
	jobs := make(chan int, workers*workerChannelMultiplier)
	var submitted atomic.Int64
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = submitSingle(ctx, client, requests[i])
				submitted.Add(1)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range requests {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()
	return results[:submitted.Load()]
}

// submitSingle posts one request and classifies the answer.
func submitSingle(ctx context.Context, client *HTTPClient, req types.PlanRequest) result {
	start := time.Now()
	status, body, err := client.Post(ctx, "/plans", req)
	r := result{latency: float64(time.Since(start).Microseconds()) / 1000}

	switch {
	case err != nil, status >= http.StatusInternalServerError:
		r.outcome = outcomeFailed
	case status != http.StatusOK:
		r.outcome = outcomeRejected
	default:
		if err := json.Unmarshal(body, &r.plan); err != nil {
			r.outcome = outcomeInvalid
			return r
		}
		if err := verifyPlan(req, r.plan); err != nil {
			logger.Named("loadtest").Warn(ctx, "invalid plan", logger.Any("pilots", req.Pilots), logger.Error(err))
			r.outcome = outcomeInvalid
			return r
		}
		r.outcome = outcomeSuccess
	}
	return r
}

// collect folds results into stats.
func collect(stats *Stats, results []result) {
	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		stats.Submitted++
		switch r.outcome {
		case outcomeSuccess:
			stats.Successful++
		case outcomeRejected:
			stats.Rejected++
		case outcomeInvalid:
			stats.Invalid++
		default:
			stats.Failed++
		}
		latencies = append(latencies, r.latency)
	}
	if len(latencies) == 0 {
		return
	}
	slices.Sort(latencies)
	stats.LatencyP50 = stat.Quantile(0.5, stat.Empirical, latencies, nil)
	stats.LatencyP95 = stat.Quantile(0.95, stat.Empirical, latencies, nil)
	stats.LatencyMax = latencies[len(latencies)-1]
}

// replay re-sends up to n successful requests and counts answers that
// picked different exercises.
func replay(ctx context.Context, client *HTTPClient, n int, requests []types.PlanRequest, results []result) (replayed, mismatched int) {
	for i, r := range results {
		if replayed >= n || ctx.Err() != nil {
			break
		}
		if r.outcome != outcomeSuccess {
			continue
		}
		again := submitSingle(ctx, client, requests[i])
		replayed++
		if again.outcome != outcomeSuccess || !samePlan(r.plan, again.plan) {
			mismatched++
		}
	}
	return replayed, mismatched
}

// saveRequests writes the generated requests as a JSON array.
func saveRequests(filename string, requests []types.PlanRequest) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(requests, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal requests: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write requests: %w", err)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("submitted", stats.Submitted),
		logger.Int("successful", stats.Successful),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("invalid", stats.Invalid),
		logger.Int("replayed", stats.Replayed),
		logger.Int("mismatched", stats.Mismatched),
		logger.Float64("latencyP50Ms", stats.LatencyP50),
		logger.Float64("latencyP95Ms", stats.LatencyP95),
		logger.Duration("duration", stats.Duration),
		logger.Float64("requestsPerSecond", perSecond))
}
