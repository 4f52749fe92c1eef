package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns it", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := Init(WithFormat("xml"))

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When initialized with an unknown level", func() {
			err := Init(WithLevel("loud"))

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerJSON(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat(FormatJSON), WithWriter(&buf), WithLevel("debug")), ShouldBeNil)
		defer func() { _ = Init() }()

		Convey("When logging with fields and With", func() {
			Get().With(String("plan_id", "p-1")).Info(context.Background(), "planned",
				Int("items", 3), Int64("pilot", 42), Error(errors.New("boom")))

			var rec map[string]any
			So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)

			Convey("Then every field is present", func() {
				So(rec["msg"], ShouldEqual, "planned")
				So(rec["plan_id"], ShouldEqual, "p-1")
				So(rec["items"], ShouldEqual, 3.0)
				So(rec["pilot"], ShouldEqual, 42.0)
				So(rec["error"], ShouldEqual, "boom")
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised", func() {
			So(SetLevelString("error"), ShouldBeNil)
			Named("svc").Info(context.Background(), "hidden")

			Convey("Then lower records are dropped", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})
	})
}
