package loadtest

import (
	"time"

	"github.com/okian/crewtrain/internal/domain/types"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Requests   int           // Number of plan requests to generate
	Pilots     []int64       // Pilot ids crews are drawn from
	MaxLimit   int           // Largest slot budget to request
	Replays    int           // Requests re-sent to check determinism
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Seed       uint64        // Request generator seed
	OutputFile string        // Optional JSON dump of the generated requests
}

// Stats holds run statistics.
type Stats struct {
	Generated  int           `json:"generated"`
	Submitted  int           `json:"submitted"`
	Successful int           `json:"successful"`
	Rejected   int           `json:"rejected"` // 4xx answers
	Failed     int           `json:"failed"`   // transport errors and 5xx answers
	Invalid    int           `json:"invalid"`  // plans that broke a plan invariant
	Replayed   int           `json:"replayed"`
	Mismatched int           `json:"mismatched"`
	LatencyP50 float64       `json:"latency_p50_ms"`
	LatencyP95 float64       `json:"latency_p95_ms"`
	LatencyMax float64       `json:"latency_max_ms"`
	Duration   time.Duration `json:"duration"`
}

// result is the outcome of one submitted request.
type result struct {
	outcome string
	latency float64
	plan    types.Plan
}

// Submission outcomes.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
	outcomeInvalid  = "invalid"
)
