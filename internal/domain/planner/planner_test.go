package planner_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/planner"
	. "github.com/smartystreets/goconvey/convey"
)

const PRO model.CompetencyCode = "PRO"

func eval(code model.CompetencyCode, score int) model.RawScore {
	return model.RawScore{
		Competency: code,
		Source:     model.SourceEval,
		Score:      score,
		Date:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func ex(id int64, codes ...model.CompetencyCode) model.Exercise {
	return model.Exercise{ID: id, Name: "exercise", Competencies: codes}
}

func TestPlanner_Scenarios(t *testing.T) {
	Convey("Given a planner with default settings", t, func() {
		p := planner.New()

		Convey("When two pilots have deficits on disjoint competencies and one exercise covers both", func() {
			res, err := p.Plan(planner.Request{
				Pilots: []planner.Pilot{
					{ID: 1, Scores: []model.RawScore{eval(model.COM, 3)}},
					{ID: 2, Scores: []model.RawScore{eval(model.FPM, 3)}},
				},
				Catalog: []model.Exercise{ex(1, model.COM), ex(2, model.FPM), ex(3, model.COM, model.FPM)},
				Params:  planner.Params{Reference: 4, Increment: 0.5, Limit: 1},
			})

			Convey("Then the dual-coverage exercise is selected", func() {
				So(err, ShouldBeNil)
				So(res.IDs(), ShouldResemble, []int64{3})
				So(res.Items[0].Stage, ShouldEqual, planner.StageGreedy)
				So(res.Development[1][model.COM], ShouldAlmostEqual, 0.5, 1e-9)
				So(res.Development[2][model.FPM], ShouldAlmostEqual, 0.5, 1e-9)
			})
		})

		Convey("When one pilot is short on COM only", func() {
			res, err := p.Plan(planner.Request{
				Pilots:  []planner.Pilot{{ID: 1, Scores: []model.RawScore{eval(model.COM, 3)}}},
				Catalog: []model.Exercise{ex(1, model.COM), ex(2, PRO)},
				Params:  planner.Params{Reference: 3.5, Increment: 0.1, Limit: 1},
			})

			Convey("Then the exercise with positive gain is selected", func() {
				So(err, ShouldBeNil)
				So(res.IDs(), ShouldResemble, []int64{1})
				So(res.Stats.Greedy, ShouldEqual, 1)
			})
		})

		Convey("When the limit exceeds the catalog", func() {
			res, err := p.Plan(planner.Request{
				Pilots:  []planner.Pilot{{ID: 1, Scores: []model.RawScore{eval(model.COM, 2)}}},
				Catalog: []model.Exercise{ex(3, model.SAW), ex(1, model.COM), ex(2, model.FPM)},
				Params:  planner.Params{Reference: 3.5, Increment: 0.1, Limit: 10},
			})

			Convey("Then the plan holds the whole catalog once", func() {
				So(err, ShouldBeNil)
				So(len(res.Items), ShouldEqual, 3)
				So(distinct(res.IDs()), ShouldBeTrue)
			})
		})
	})
}

func TestPlanner_BalanceTie(t *testing.T) {
	Convey("Given two pairs tied at 4.0 and one balance slot", t, func() {
		p := planner.New(planner.WithCompetencies([]model.CompetencyCode{model.COM, model.SAW}))
		req := planner.Request{
			Pilots:  []planner.Pilot{{ID: 9, Scores: []model.RawScore{eval(model.COM, 4), eval(model.SAW, 4)}}},
			Catalog: []model.Exercise{ex(1, model.COM), ex(2, model.SAW)},
			Params:  planner.Params{Reference: 3.5, Increment: 0.5, Limit: 1},
		}

		first, err := p.Plan(req)
		So(err, ShouldBeNil)

		Convey("Then Stage 2 fills the slot", func() {
			So(first.Stats.Greedy, ShouldEqual, 0)
			So(first.Stats.Balance, ShouldEqual, 1)
			So(len(first.Items), ShouldEqual, 1)
		})

		Convey("And repeated runs give identical output", func() {
			for i := 0; i < 5; i++ {
				again, err := p.Plan(req)
				So(err, ShouldBeNil)
				So(again.IDs(), ShouldResemble, first.IDs())
				So(again.Stats.BalanceValue, ShouldEqual, first.Stats.BalanceValue)
			}
		})
	})
}

func TestPlanner_Invariants(t *testing.T) {
	catalog := []model.Exercise{
		ex(1, model.COM, model.SAW),
		ex(2, model.FPM),
		ex(3, model.FPA, model.WLM),
		ex(4, model.LTW, model.PSD, model.COM),
		ex(5, model.KNO),
		ex(6, model.APK, model.SAW),
		ex(7, model.FPM, model.FPA),
		ex(8, model.WLM),
	}
	pilots := []planner.Pilot{
		{ID: 11, Scores: []model.RawScore{eval(model.COM, 2), eval(model.FPM, 3), eval(model.SAW, 5), eval(model.KNO, 5)}},
		{ID: 12, Scores: []model.RawScore{eval(model.WLM, 2), eval(model.COM, 4), eval(model.APK, 5)}},
	}

	Convey("Given a two-pilot crew and a mixed catalog", t, func() {
		p := planner.New()

		for _, limit := range []int{1, 3, 5, 8, 12} {
			res, err := p.Plan(planner.Request{
				Pilots:  pilots,
				Catalog: catalog,
				Params:  planner.Params{Reference: 3.5, Increment: 0.5, Limit: limit},
			})
			So(err, ShouldBeNil)

			want := limit
			if want > len(catalog) {
				want = len(catalog)
			}
			So(len(res.Items), ShouldEqual, want)
			So(distinct(res.IDs()), ShouldBeTrue)
			So(res.Stats.Greedy+res.Stats.Balance+res.Stats.Padding, ShouldEqual, want)

			for _, pr := range res.Projections {
				So(pr.After, ShouldBeLessThanOrEqualTo, planner.MaxScore)
				So(pr.After, ShouldBeGreaterThanOrEqualTo, pr.Before)
				So(pr.Deficit, ShouldBeGreaterThanOrEqualTo, 0)
			}
			for _, byCode := range res.Development {
				for _, inc := range byCode {
					So(inc, ShouldBeGreaterThan, 0)
				}
			}
		}
	})

	Convey("Given pilots already at the ceiling", t, func() {
		p := planner.New(planner.WithCompetencies([]model.CompetencyCode{model.COM}))
		res, err := p.Plan(planner.Request{
			Pilots:  []planner.Pilot{{ID: 1, Scores: []model.RawScore{eval(model.COM, 5)}}},
			Catalog: []model.Exercise{ex(1, model.COM), ex(2, model.COM)},
			Params:  planner.Params{Reference: 3.5, Increment: 1, Limit: 2},
		})

		Convey("Then scores never exceed 5 and nothing is reported as developed", func() {
			So(err, ShouldBeNil)
			So(len(res.Items), ShouldEqual, 2)
			So(res.Projections[0].After, ShouldEqual, 5)
			So(len(res.Development), ShouldEqual, 0)
		})
	})

	Convey("Given a near-ceiling pilot and a large increment", t, func() {
		p := planner.New(planner.WithCompetencies([]model.CompetencyCode{model.COM}))
		res, err := p.Plan(planner.Request{
			Pilots:  []planner.Pilot{{ID: 1, Scores: []model.RawScore{eval(model.COM, 4)}}},
			Catalog: []model.Exercise{ex(1, model.COM), ex(2, model.COM), ex(3, model.COM)},
			Params:  planner.Params{Reference: 3.5, Increment: 0.75, Limit: 3},
		})

		Convey("Then the realized increment stops at the ceiling", func() {
			So(err, ShouldBeNil)
			So(res.Projections[0].After, ShouldEqual, 5)
			So(res.Development[1][model.COM], ShouldAlmostEqual, 1, 1e-9)
		})
	})
}

func TestPlanner_StageOneProductivity(t *testing.T) {
	Convey("Given a deficit no exercise can close", t, func() {
		p := planner.New()
		res, err := p.Plan(planner.Request{
			Pilots:  []planner.Pilot{{ID: 1, Scores: []model.RawScore{eval(model.COM, 2)}}},
			Catalog: []model.Exercise{ex(1, model.SAW), ex(2, model.FPM)},
			Params:  planner.Params{Reference: 3.5, Increment: 0.1, Limit: 1},
		})

		Convey("Then Stage 1 picks nothing and Stage 2 fills the slot", func() {
			So(err, ShouldBeNil)
			So(res.Stats.Greedy, ShouldEqual, 0)
			So(len(res.Items), ShouldEqual, 1)
			So(res.Items[0].Stage, ShouldEqual, planner.StageBalance)
		})
	})

	Convey("Given deficits that close before the budget runs out", t, func() {
		p := planner.New()
		res, err := p.Plan(planner.Request{
			Pilots:  []planner.Pilot{{ID: 1, Scores: []model.RawScore{eval(model.COM, 3)}}},
			Catalog: []model.Exercise{ex(1, model.COM), ex(2, model.SAW), ex(3, model.FPM)},
			Params:  planner.Params{Reference: 3.5, Increment: 0.5, Limit: 3},
		})

		Convey("Then Stage 1 stops once deficits are gone and Stage 2 spends the rest", func() {
			So(err, ShouldBeNil)
			So(res.Stats.Greedy, ShouldEqual, 1)
			So(res.Items[0].Exercise.ID, ShouldEqual, 1)
			So(res.Stats.Balance, ShouldEqual, 2)
			So(len(res.Items), ShouldEqual, 3)
		})
	})
}

func TestPlanner_BalanceFallback(t *testing.T) {
	Convey("Given an increment that makes Stage 2 degenerate", t, func() {
		p := planner.New()
		req := planner.Request{
			Pilots:  []planner.Pilot{{ID: 1, Scores: []model.RawScore{eval(model.COM, 2)}}},
			Catalog: []model.Exercise{ex(4, PRO), ex(2, model.FPM), ex(1, model.COM), ex(3, model.SAW)},
			Params:  planner.Params{Reference: 3.5, Increment: math.NaN(), Limit: 3},
		}

		Convey("When the limit is below the catalog size", func() {
			res, err := p.Plan(req)

			Convey("Then Stage 2 contributes nothing and padding fills in id order", func() {
				So(err, ShouldBeNil)
				So(res.Stats.BalanceFallback, ShouldBeTrue)
				So(res.Stats.Balance, ShouldEqual, 0)
				So(res.Stats.Greedy, ShouldEqual, 1)
				So(res.Stats.Padding, ShouldEqual, 2)
				So(res.IDs(), ShouldResemble, []int64{1, 2, 3})
				So(res.Items[0].Stage, ShouldEqual, planner.StageGreedy)
				So(res.Items[1].Stage, ShouldEqual, planner.StagePadding)
				So(res.Items[2].Stage, ShouldEqual, planner.StagePadding)
			})
		})

		Convey("When the limit exceeds the catalog", func() {
			req.Limit = 10
			res, err := p.Plan(req)

			Convey("Then the plan holds exactly the catalog", func() {
				So(err, ShouldBeNil)
				So(res.Stats.BalanceFallback, ShouldBeTrue)
				So(res.IDs(), ShouldResemble, []int64{1, 2, 3, 4})
				So(res.Stats.Padding, ShouldEqual, 3)
			})
		})
	})
}

func TestPlanner_EdgeCases(t *testing.T) {
	Convey("Given a planner", t, func() {
		p := planner.New()
		pilot := planner.Pilot{ID: 1, Scores: []model.RawScore{eval(model.COM, 2)}}

		Convey("When the limit is zero", func() {
			res, err := p.Plan(planner.Request{
				Pilots:  []planner.Pilot{pilot},
				Catalog: []model.Exercise{ex(1, model.COM)},
				Params:  planner.Params{Reference: 3.5, Increment: 0.1},
			})

			Convey("Then the plan and development are empty", func() {
				So(err, ShouldBeNil)
				So(len(res.Items), ShouldEqual, 0)
				So(res.Development, ShouldNotBeNil)
				So(len(res.Development), ShouldEqual, 0)
			})
		})

		Convey("When the catalog is empty", func() {
			res, err := p.Plan(planner.Request{
				Pilots: []planner.Pilot{pilot},
				Params: planner.Params{Reference: 3.5, Increment: 0.1, Limit: 4},
			})

			Convey("Then the plan is empty", func() {
				So(err, ShouldBeNil)
				So(len(res.Items), ShouldEqual, 0)
				So(len(res.Development), ShouldEqual, 0)
			})
		})

		Convey("When the catalog repeats an id", func() {
			res, err := p.Plan(planner.Request{
				Pilots:  []planner.Pilot{pilot},
				Catalog: []model.Exercise{ex(1, model.COM), ex(1, model.COM), ex(2, model.SAW)},
				Params:  planner.Params{Reference: 3.5, Increment: 0.1, Limit: 5},
			})

			Convey("Then each distinct exercise appears once", func() {
				So(err, ShouldBeNil)
				So(len(res.Items), ShouldEqual, 2)
				So(distinct(res.IDs()), ShouldBeTrue)
			})
		})

		Convey("When a pilot has no scores at all", func() {
			res, err := p.Plan(planner.Request{
				Pilots:  []planner.Pilot{{ID: 5}},
				Catalog: []model.Exercise{ex(1, model.COM)},
				Params:  planner.Params{Reference: 3.5, Increment: 0.1, Limit: 1},
			})

			Convey("Then no deficit is manufactured", func() {
				So(err, ShouldBeNil)
				So(res.Stats.Greedy, ShouldEqual, 0)
				for _, pr := range res.Projections {
					So(pr.Before, ShouldEqual, 3.5)
				}
			})
		})

		Convey("When no pilots or too many pilots are given", func() {
			_, errNone := p.Plan(planner.Request{Params: planner.Params{Limit: 1}})
			_, errMany := p.Plan(planner.Request{
				Pilots: []planner.Pilot{{ID: 1}, {ID: 2}, {ID: 3}},
				Params: planner.Params{Limit: 1},
			})

			Convey("Then ErrPilotCount is returned", func() {
				So(errors.Is(errNone, planner.ErrPilotCount), ShouldBeTrue)
				So(errors.Is(errMany, planner.ErrPilotCount), ShouldBeTrue)
			})
		})
	})
}

func TestPlanner_Concurrent(t *testing.T) {
	Convey("Given the same request planned from many goroutines", t, func() {
		p := planner.New()
		req := planner.Request{
			Pilots: []planner.Pilot{
				{ID: 1, Scores: []model.RawScore{eval(model.COM, 2), eval(model.SAW, 3)}},
				{ID: 2, Scores: []model.RawScore{eval(model.FPM, 2)}},
			},
			Catalog: []model.Exercise{ex(1, model.COM), ex(2, model.SAW, model.FPM), ex(3, model.KNO), ex(4, model.WLM)},
			Params:  planner.Params{Reference: 3.5, Increment: 0.25, Limit: 4},
		}
		want, err := p.Plan(req)
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		results := make([][]int64, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, _ := p.Plan(req)
				results[i] = res.IDs()
			}(i)
		}
		wg.Wait()

		Convey("Then every call yields the same plan", func() {
			for _, ids := range results {
				So(ids, ShouldResemble, want.IDs())
			}
		})
	})
}

func distinct(ids []int64) bool {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

func TestPlanner_Problem(t *testing.T) {
	Convey("Given a crew and a catalog", t, func() {
		p := planner.New(planner.WithCompetencies([]model.CompetencyCode{model.COM, model.FPM}))
		req := planner.Request{
			Pilots: []planner.Pilot{
				{ID: 1, Scores: []model.RawScore{eval(model.COM, 3)}},
				{ID: 2, Scores: []model.RawScore{eval(model.FPM, 3)}},
			},
			Catalog: []model.Exercise{ex(1, model.COM), ex(2, model.FPM), ex(3, model.COM, model.FPM)},
			Params:  planner.Params{Reference: 4, Increment: 0.5, Limit: 2},
		}

		Convey("When the balance problem is extracted", func() {
			bp, err := p.Problem(req)
			So(err, ShouldBeNil)

			Convey("Then it spans every pair and the whole catalog", func() {
				k, m := bp.Dims()
				So(k, ShouldEqual, 4)
				So(m, ShouldEqual, 3)
				So(bp.Cap(), ShouldEqual, 2)
				So(bp.D, ShouldEqual, 0.5)

				var low, high int
				for _, s := range bp.S0 {
					switch s {
					case 3:
						low++
					case 4:
						high++
					}
				}
				So(low, ShouldEqual, 2)
				So(high, ShouldEqual, 2)
			})

			Convey("Then every row marks the exercises developing its competency", func() {
				for _, row := range bp.A {
					So(row[2], ShouldEqual, 1.0)
					So(row[0]+row[1], ShouldEqual, 1.0)
				}
			})
		})

		Convey("When the crew is empty", func() {
			req.Pilots = nil
			_, err := p.Problem(req)
			So(errors.Is(err, planner.ErrPilotCount), ShouldBeTrue)
		})
	})
}
