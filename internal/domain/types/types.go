// Package types contains the request and response shapes shared by the
// service and the HTTP API.
package types

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/planner"
)

// reportDecimals trims float residue from reported values.
const reportDecimals = 6

// PlanRequest asks for one crew plan. Nil fields take service defaults.
type PlanRequest struct {
	Pilots    []int64  `json:"pilots" validate:"required,min=1,max=2,unique,dive,gt=0"`
	Limit     *int     `json:"limit,omitempty" validate:"omitempty,gte=0"`
	Reference *float64 `json:"reference,omitempty" validate:"omitempty,gt=0,lte=5"`
	Increment *float64 `json:"increment,omitempty" validate:"omitempty,gt=0,lte=5"`
}

// BatchRequest plans several crews at once.
type BatchRequest struct {
	Crews []PlanRequest `json:"crews" validate:"required,min=1,dive"`
}

// PlannedExercise is one plan entry.
type PlannedExercise struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Competencies []string `json:"competencies"`
	Stage        string   `json:"stage"`
}

// Projection is the projected score of one pilot competency.
type Projection struct {
	Pilot      int64   `json:"pilot"`
	Competency string  `json:"competency"`
	Before     float64 `json:"before"`
	After      float64 `json:"after"`
	Deficit    float64 `json:"deficit"`
}

// PlanStats tells how many exercises each stage contributed.
type PlanStats struct {
	Greedy          int     `json:"greedy"`
	Balance         int     `json:"balance"`
	Padding         int     `json:"padding"`
	BalanceValue    float64 `json:"balance_value"`
	BalanceFallback bool    `json:"balance_fallback"`
}

// Plan is a finished plan.
type Plan struct {
	ID          string                        `json:"id"`
	Pilots      []int64                       `json:"pilots"`
	Reference   float64                       `json:"reference"`
	Increment   float64                       `json:"increment"`
	Limit       int                           `json:"limit"`
	Exercises   []PlannedExercise             `json:"exercises"`
	Development map[string]map[string]float64 `json:"development"`
	Projections []Projection                  `json:"projections"`
	Stats       PlanStats                     `json:"stats"`
	CreatedAt   time.Time                     `json:"created_at"`
}

// BatchResponse holds plans in request order.
type BatchResponse struct {
	Plans []Plan `json:"plans"`
}

// PilotAverages lists weighted averages per competency; undefined
// competencies are null.
type PilotAverages struct {
	Pilot        int64               `json:"pilot"`
	Competencies map[string]*float64 `json:"competencies"`
}

// ServiceStats is the /stats payload.
type ServiceStats struct {
	Started      bool   `json:"started"`
	Provider     string `json:"provider"`
	WorkerCount  int    `json:"worker_count"`
	DefaultLimit int    `json:"default_limit"`
	MaxPlanLimit int    `json:"max_plan_limit"`
	Pilots       int    `json:"pilots"`
	Scores       int    `json:"scores"`
	Weights      int    `json:"weights"`
	Exercises    int    `json:"exercises"`
	Planned      int64  `json:"plans_built"`
	Failed       int64  `json:"plans_failed"`
}

// NewPlan converts a planner result into its wire form.
func NewPlan(id string, pilots []int64, params planner.Params, res planner.Result, at time.Time) Plan {
	p := Plan{
		ID:          id,
		Pilots:      append([]int64(nil), pilots...),
		Reference:   params.Reference,
		Increment:   params.Increment,
		Limit:       params.Limit,
		Exercises:   make([]PlannedExercise, len(res.Items)),
		Development: make(map[string]map[string]float64, len(res.Development)),
		Projections: make([]Projection, len(res.Projections)),
		Stats: PlanStats{
			Greedy:          res.Stats.Greedy,
			Balance:         res.Stats.Balance,
			Padding:         res.Stats.Padding,
			BalanceValue:    round(res.Stats.BalanceValue),
			BalanceFallback: res.Stats.BalanceFallback,
		},
		CreatedAt: at.UTC(),
	}
	for i, it := range res.Items {
		p.Exercises[i] = PlannedExercise{
			ID:           it.Exercise.ID,
			Name:         it.Exercise.Name,
			Competencies: codes(it.Exercise.Competencies),
			Stage:        it.Stage.String(),
		}
	}
	for pilot, byCode := range res.Development {
		out := make(map[string]float64, len(byCode))
		for code, inc := range byCode {
			out[string(code)] = round(inc)
		}
		p.Development[strconv.FormatInt(int64(pilot), 10)] = out
	}
	for i, pr := range res.Projections {
		p.Projections[i] = Projection{
			Pilot:      int64(pr.Pilot),
			Competency: string(pr.Competency),
			Before:     round(pr.Before),
			After:      round(pr.After),
			Deficit:    round(pr.Deficit),
		}
	}
	return p
}

// ExerciseIDs returns the planned ids in order.
func (p Plan) ExerciseIDs() []int64 {
	ids := make([]int64, len(p.Exercises))
	for i, ex := range p.Exercises {
		ids[i] = ex.ID
	}
	return ids
}

// NewPilotAverages reports avg over universe plus any scored code.
func NewPilotAverages(pilot int64, universe []model.CompetencyCode, avg map[model.CompetencyCode]float64) PilotAverages {
	out := PilotAverages{Pilot: pilot, Competencies: make(map[string]*float64, len(universe))}
	for _, code := range universe {
		out.Competencies[string(code)] = nil
	}
	for code, v := range avg {
		v := v
		out.Competencies[string(code)] = &v
	}
	return out
}

func codes(in []model.CompetencyCode) []string {
	out := make([]string, len(in))
	for i, c := range in {
		out[i] = string(c)
	}
	sort.Strings(out)
	return out
}

func round(v float64) float64 {
	p := math.Pow(10, reportDecimals)
	return math.Round(v*p) / p
}
