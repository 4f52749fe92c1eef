package loadtest

import (
	"fmt"
	"slices"

	"github.com/okian/crewtrain/internal/domain/types"
)

// stageOrder is the order stages append exercises in.
var stageOrder = map[string]int{"greedy": 0, "balance": 1, "padding": 2}

// verifyPlan checks a returned plan against the request it answers.
func verifyPlan(req types.PlanRequest, plan types.Plan) error {
	if !slices.Equal(req.Pilots, plan.Pilots) {
		return fmt.Errorf("plan pilots %v do not match request %v", plan.Pilots, req.Pilots)
	}
	if req.Limit != nil && plan.Limit != *req.Limit {
		return fmt.Errorf("plan limit %d does not match request %d", plan.Limit, *req.Limit)
	}
	if len(plan.Exercises) > plan.Limit {
		return fmt.Errorf("plan holds %d exercises over limit %d", len(plan.Exercises), plan.Limit)
	}

	seen := make(map[int64]bool, len(plan.Exercises))
	last := 0
	for i, ex := range plan.Exercises {
		if seen[ex.ID] {
			return fmt.Errorf("exercise %d repeated", ex.ID)
		}
		seen[ex.ID] = true
		order, ok := stageOrder[ex.Stage]
		if !ok {
			return fmt.Errorf("exercise %d has unknown stage %q", i, ex.Stage)
		}
		if order < last {
			return fmt.Errorf("exercise %d stage %q out of order", i, ex.Stage)
		}
		last = order
	}

	st := plan.Stats
	if st.Greedy+st.Balance+st.Padding != len(plan.Exercises) {
		return fmt.Errorf("stage counts %d+%d+%d do not add up to %d",
			st.Greedy, st.Balance, st.Padding, len(plan.Exercises))
	}
	for _, p := range plan.Projections {
		if p.After < p.Before || p.After > 5 {
			return fmt.Errorf("projection of pilot %d %s out of range: %.3f -> %.3f",
				p.Pilot, p.Competency, p.Before, p.After)
		}
	}
	return nil
}

// samePlan reports whether two plans picked the same exercises.
func samePlan(a, b types.Plan) bool {
	return slices.Equal(a.ExerciseIDs(), b.ExerciseIDs())
}
