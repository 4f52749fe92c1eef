package loadtest

import (
	"math/rand/v2"

	"github.com/okian/crewtrain/internal/domain/types"
)

// generateRequests draws n crews from the configured pilot pool. About
// one request in four is a single-pilot crew.
func generateRequests(cfg *Config, rng *rand.Rand) []types.PlanRequest {
	out := make([]types.PlanRequest, 0, cfg.Requests)
	for range cfg.Requests {
		out = append(out, generateRequest(cfg, rng))
	}
	return out
}

func generateRequest(cfg *Config, rng *rand.Rand) types.PlanRequest {
	pool := cfg.Pilots
	first := rng.IntN(len(pool))
	pilots := []int64{pool[first]}
	if len(pool) > 1 && rng.IntN(4) != 0 {
		second := rng.IntN(len(pool) - 1)
		if second >= first {
			second++
		}
		pilots = append(pilots, pool[second])
	}
	limit := rng.IntN(cfg.MaxLimit + 1)
	return types.PlanRequest{Pilots: pilots, Limit: &limit}
}
