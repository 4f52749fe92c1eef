package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/crewtrain/internal/adapters/http/api"
	"github.com/okian/crewtrain/internal/adapters/repository"
	service "github.com/okian/crewtrain/internal/app"
	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/internal/domain/types"
	"github.com/okian/crewtrain/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func score(pilot model.PilotID, code model.CompetencyCode, v int) model.RawScore {
	return model.RawScore{PilotID: pilot, Competency: code, Source: model.SourceEval, Score: v, Date: day}
}

func exercise(id int64, codes ...model.CompetencyCode) model.Exercise {
	return model.Exercise{ID: id, Name: fmt.Sprintf("exercise %d", id), Competencies: codes}
}

func startedService(t *testing.T) *service.Service {
	t.Helper()
	store := repository.NewMemoryStore(
		repository.WithScores(
			score(1, model.COM, 3), score(1, model.SAW, 4),
			score(2, model.COM, 4), score(2, model.SAW, 3),
		),
		repository.WithExercises(
			exercise(1, model.COM),
			exercise(2, model.SAW),
			exercise(3, model.COM, model.SAW),
		),
	)
	svc := service.New(
		service.WithProvider(store, "memory"),
		service.WithCompetencies([]model.CompetencyCode{model.COM, model.SAW}),
		service.WithReference(4),
		service.WithIncrement(0.5),
		service.WithMaxBatchSize(2),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func newMux(planner api.Planner, stats api.StatsProvider) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(planner, stats).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

// stubPlanner fails every call with err.
type stubPlanner struct{ err error }

func (s stubPlanner) Plan(context.Context, types.PlanRequest) (types.Plan, error) {
	return types.Plan{}, s.err
}

func (s stubPlanner) PlanBatch(context.Context, types.BatchRequest) (types.BatchResponse, error) {
	return types.BatchResponse{}, s.err
}

func (s stubPlanner) Averages(context.Context, []int64) ([]types.PilotAverages, error) {
	return nil, s.err
}

type stubStats struct{ stats types.ServiceStats }

func (s stubStats) GetStats(context.Context) types.ServiceStats { return s.stats }

func TestServer_Plans(t *testing.T) {
	Convey("Given a server backed by a started service", t, func() {
		svc := startedService(t)
		mux := newMux(svc, svc)

		Convey("When a crew plan is requested", func() {
			w := do(mux, http.MethodPost, "/plans", `{"pilots":[1,2],"limit":1}`)

			Convey("Then the dual coverage exercise is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")

				var plan types.Plan
				So(json.Unmarshal(w.Body.Bytes(), &plan), ShouldBeNil)
				So(plan.ID, ShouldNotBeEmpty)
				So(plan.ExerciseIDs(), ShouldResemble, []int64{3})
				So(plan.Exercises[0].Stage, ShouldEqual, "greedy")
				So(plan.Development["1"]["COM"], ShouldAlmostEqual, 0.5)
				So(plan.Development["2"]["SAW"], ShouldAlmostEqual, 0.5)
			})
		})

		Convey("When the body is malformed", func() {
			w := do(mux, http.MethodPost, "/plans", `{"pilots":`)

			Convey("Then it is rejected as a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the body fails validation", func() {
			cases := []string{
				`{"pilots":[]}`,
				`{"pilots":[1,2,3]}`,
				`{"pilots":[1,1]}`,
				`{"pilots":[0]}`,
				`{"pilots":[1],"limit":-1}`,
				`{"pilots":[1],"reference":6}`,
				`{"pilots":[1],"increment":0}`,
				`{"pilots":[1],"extra":true}`,
			}
			for _, body := range cases {
				Convey(body, func() {
					w := do(mux, http.MethodPost, "/plans", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				})
			}
		})

		Convey("When the limit exceeds the service maximum", func() {
			w := do(mux, http.MethodPost, "/plans", `{"pilots":[1],"limit":1000}`)

			Convey("Then the service rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unknown pilot is requested", func() {
			w := do(mux, http.MethodPost, "/plans", `{"pilots":[1,42]}`)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When a GET is sent to /plans", func() {
			w := do(mux, http.MethodGet, "/plans", "")

			Convey("Then no route answers", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServer_Batch(t *testing.T) {
	Convey("Given a server backed by a started service", t, func() {
		svc := startedService(t)
		mux := newMux(svc, svc)

		Convey("When two crews are planned", func() {
			w := do(mux, http.MethodPost, "/plans/batch",
				`{"crews":[{"pilots":[1,2],"limit":1},{"pilots":[1],"limit":2}]}`)

			Convey("Then plans come back in request order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp types.BatchResponse
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Plans, ShouldHaveLength, 2)
				So(resp.Plans[0].Pilots, ShouldResemble, []int64{1, 2})
				So(resp.Plans[1].Pilots, ShouldResemble, []int64{1})
				So(resp.Plans[1].Exercises, ShouldHaveLength, 2)
			})
		})

		Convey("When the batch is larger than allowed", func() {
			w := do(mux, http.MethodPost, "/plans/batch",
				`{"crews":[{"pilots":[1]},{"pilots":[2]},{"pilots":[1,2]}]}`)

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When one crew in the batch is invalid", func() {
			w := do(mux, http.MethodPost, "/plans/batch", `{"crews":[{"pilots":[1]},{"pilots":[]}]}`)

			Convey("Then the whole batch is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestServer_Averages(t *testing.T) {
	Convey("Given a server backed by a started service", t, func() {
		svc := startedService(t)
		mux := newMux(svc, svc)

		Convey("When averages are requested for two pilots", func() {
			w := do(mux, http.MethodGet, "/averages?pilots=1,2", "")

			Convey("Then each pilot gets its weighted averages", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out []types.PilotAverages
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(out[0].Pilot, ShouldEqual, int64(1))
				So(*out[0].Competencies["COM"], ShouldAlmostEqual, 3.0)
				So(*out[1].Competencies["SAW"], ShouldAlmostEqual, 3.0)
			})
		})

		Convey("When the pilots parameter is missing or invalid", func() {
			for _, target := range []string{"/averages", "/averages?pilots=a", "/averages?pilots=1,-2"} {
				Convey(target, func() {
					w := do(mux, http.MethodGet, target, "")
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				})
			}
		})

		Convey("When a pilot is unknown", func() {
			w := do(mux, http.MethodGet, "/averages?pilots=99", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServer_ErrorMapping(t *testing.T) {
	Convey("Given a planner that fails", t, func() {
		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"not started", service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
			{"provider failure", fmt.Errorf("%w: disk", service.ErrProvider), http.StatusInternalServerError, "internal_error"},
			{"bad request", fmt.Errorf("%w: limit", service.ErrBadRequest), http.StatusBadRequest, "bad_request"},
			{"unknown pilot", repository.ErrUnknownPilot, http.StatusNotFound, "not_found"},
		}
		for _, tc := range cases {
			Convey("When the failure is "+tc.name, func() {
				mux := newMux(stubPlanner{err: tc.err}, stubStats{})
				w := do(mux, http.MethodPost, "/plans", `{"pilots":[1]}`)

				So(w.Code, ShouldEqual, tc.status)
				So(decodeError(w)["code"], ShouldEqual, tc.code)
			})
		}
	})
}

func TestServer_StatsAndHealth(t *testing.T) {
	Convey("Given a server with a stats provider", t, func() {
		stats := stubStats{stats: types.ServiceStats{Started: true, Provider: "memory", Pilots: 2}}
		mux := newMux(stubPlanner{}, stats)

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", "")

			Convey("Then the service stats are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out types.ServiceStats
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.Provider, ShouldEqual, "memory")
				So(out.Pilots, ShouldEqual, 2)
			})
		})

		Convey("When health is requested", func() {
			do(mux, http.MethodGet, "/stats", "")
			w := do(mux, http.MethodGet, "/healthz", "")

			Convey("Then metrics are exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "crewtrain_planner_http_requests_total")
			})
		})
	})

	Convey("Given a nil mux", t, func() {
		Convey("Then registering panics", func() {
			So(func() {
				api.NewServer(stubPlanner{}, stubStats{}).Register(context.Background(), nil)
			}, ShouldPanic)
		})
	})
}
