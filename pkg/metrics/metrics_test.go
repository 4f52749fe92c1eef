package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithHistogramBuckets([]float64{1, 10}),
			WithConstLabels(map[string]string{"env": "test"}),
			WithPrometheusRegistry(registry),
		)

		Convey("When a plan is counted", func() {
			m.plansTotal.WithLabelValues(OutcomeOK).Inc()

			Convey("Then the namespaced series is exported", func() {
				expected := `
# HELP test_unit_plans_total Total number of plan requests by outcome
# TYPE test_unit_plans_total counter
test_unit_plans_total{env="test",outcome="ok"} 1
`
				So(testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_unit_plans_total"), ShouldBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global recorders", t, func() {
		Convey("When plans are recorded", func() {
			before := testutil.ToFloat64(globalManager.plansTotal.WithLabelValues(OutcomeFailed))
			RecordPlan(OutcomeFailed)

			Convey("Then the outcome counter increases", func() {
				So(testutil.ToFloat64(globalManager.plansTotal.WithLabelValues(OutcomeFailed)), ShouldEqual, before+1)
			})
		})

		Convey("When stage selections are recorded", func() {
			before := testutil.ToFloat64(globalManager.exercisesSelected.WithLabelValues(StageBalance))
			So(RecordExercisesSelected(StageBalance, 3), ShouldBeNil)
			So(RecordExercisesSelected(StageBalance, 0), ShouldBeNil)

			Convey("Then only positive counts are added", func() {
				So(testutil.ToFloat64(globalManager.exercisesSelected.WithLabelValues(StageBalance)), ShouldEqual, before+3)
			})
		})

		Convey("When an unknown stage is recorded", func() {
			err := RecordExercisesSelected("warmup", 1)

			Convey("Then ErrUnknownStage is returned", func() {
				So(errors.Is(err, ErrUnknownStage), ShouldBeTrue)
			})
		})

		Convey("When gauges are set", func() {
			UpdateWorkerCount(4)
			UpdateRepositoryRecords("exercises", 12)

			Convey("Then they hold the latest value", func() {
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.repositoryRecords.WithLabelValues("exercises")), ShouldEqual, 12)
			})
		})

		Convey("When the remaining recorders are used", func() {
			So(func() {
				RecordPlanDuration(3.2)
				RecordBalanceFallback()
				RecordBatchSize(4)
				RecordRepositoryQuery("scores", 0.4)
				RecordHTTPRequest("/plans", "POST", "200")
				RecordHTTPRequestDuration("/plans", "POST", "200", 5)
				RecordError("service", "provider")
			}, ShouldNotPanic)

			Convey("Then the registry gathers them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
