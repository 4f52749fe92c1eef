package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/crewtrain/internal/adapters/repository"
	"github.com/okian/crewtrain/internal/adapters/repository/sqlite"
	"github.com/okian/crewtrain/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "crewtrain.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	Convey("Given an empty SQLite store", t, func() {
		ctx := context.Background()
		store := openTestStore(t)
		day := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)

		Convey("When it is seeded", func() {
			So(store.PutPilot(ctx, repository.Pilot{ID: 1, Name: "First Officer"}), ShouldBeNil)
			So(store.AddScores(ctx,
				model.RawScore{PilotID: 1, Competency: model.COM, Source: model.SourceEval, Score: 3, Date: day, Comment: "late callouts"},
				model.RawScore{PilotID: 2, Competency: model.SAW, Source: model.SourceFlightData, Score: 4, Date: day},
			), ShouldBeNil)
			So(store.SetWeights(ctx,
				model.CompetencyWeight{Competency: model.COM, Source: model.SourceEval, Weight: 0.4},
				model.CompetencyWeight{Competency: model.APK, Source: model.SourceQualification, Weight: 0.3},
			), ShouldBeNil)
			So(store.PutExercises(ctx,
				model.Exercise{ID: 5, Name: "Windshear escape", Competencies: []model.CompetencyCode{model.FPM, model.SAW}},
				model.Exercise{ID: 2, Name: "Radio failure", Competencies: []model.CompetencyCode{model.COM}},
			), ShouldBeNil)

			Convey("Then scores round-trip with their dates", func() {
				scores, err := store.Scores(ctx, 1)
				So(err, ShouldBeNil)
				So(len(scores), ShouldEqual, 1)
				So(scores[0].Competency, ShouldEqual, model.COM)
				So(scores[0].Source, ShouldEqual, model.SourceEval)
				So(scores[0].Score, ShouldEqual, 3)
				So(scores[0].Comment, ShouldEqual, "late callouts")
				So(scores[0].Date.Equal(day), ShouldBeTrue)
			})

			Convey("And pilots registered through scores are known", func() {
				scores, err := store.Scores(ctx, 2)
				So(err, ShouldBeNil)
				So(len(scores), ShouldEqual, 1)
			})

			Convey("And the catalog keeps id order and competency order", func() {
				catalog, err := store.Catalog(ctx)
				So(err, ShouldBeNil)
				So(len(catalog), ShouldEqual, 2)
				So(catalog[0].ID, ShouldEqual, 2)
				So(catalog[1].Competencies, ShouldResemble, []model.CompetencyCode{model.FPM, model.SAW})
			})

			Convey("And weights are sorted by competency", func() {
				weights, err := store.Weights(ctx)
				So(err, ShouldBeNil)
				So(weights[0].Competency, ShouldEqual, model.APK)
				So(weights[1].Weight, ShouldEqual, 0.4)
			})

			Convey("And counts cover every table", func() {
				c, err := store.Counts(ctx)
				So(err, ShouldBeNil)
				So(c, ShouldResemble, repository.Counts{Pilots: 2, Scores: 2, Weights: 2, Exercises: 2})
			})

			Convey("And replacing an exercise rewrites its competencies", func() {
				So(store.PutExercises(ctx, model.Exercise{ID: 5, Name: "Windshear", Competencies: []model.CompetencyCode{model.WLM}}), ShouldBeNil)
				catalog, _ := store.Catalog(ctx)
				So(catalog[1].Name, ShouldEqual, "Windshear")
				So(catalog[1].Competencies, ShouldResemble, []model.CompetencyCode{model.WLM})
			})
		})

		Convey("When an unknown pilot is queried", func() {
			_, err := store.Scores(ctx, 99)

			Convey("Then ErrUnknownPilot is returned", func() {
				So(errors.Is(err, repository.ErrUnknownPilot), ShouldBeTrue)
			})
		})

		Convey("When invalid records are written", func() {
			errScore := store.AddScores(ctx, model.RawScore{PilotID: 1, Competency: model.COM, Source: model.SourceEval, Score: 1})
			errWeight := store.SetWeights(ctx, model.CompetencyWeight{Competency: model.COM, Source: model.SourceEval, Weight: -0.1})
			errEx := store.PutExercises(ctx, model.Exercise{ID: 1})

			Convey("Then they are rejected before touching the database", func() {
				So(errors.Is(errScore, repository.ErrInvalidRecord), ShouldBeTrue)
				So(errors.Is(errWeight, repository.ErrInvalidRecord), ShouldBeTrue)
				So(errors.Is(errEx, repository.ErrInvalidRecord), ShouldBeTrue)
				c, _ := store.Counts(ctx)
				So(c, ShouldResemble, repository.Counts{})
			})
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Opening without a path fails", t, func() {
		_, err := sqlite.Open("  ")
		So(err, ShouldNotBeNil)
	})

	Convey("Reopening a database keeps its data", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "reopen.db")
		first, err := sqlite.Open(path)
		So(err, ShouldBeNil)
		So(first.PutPilot(ctx, repository.Pilot{ID: 4}), ShouldBeNil)
		So(first.Close(), ShouldBeNil)

		second, err := sqlite.Open(path)
		So(err, ShouldBeNil)
		defer func() { _ = second.Close() }()
		_, err = second.Scores(ctx, 4)
		So(err, ShouldBeNil)
	})
}
