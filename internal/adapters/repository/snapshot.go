package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/crewtrain/internal/domain/model"
)

// Accepted score date layouts, tried in order.
var dateLayouts = []string{time.RFC3339, time.DateOnly}

// Snapshot is the YAML document read by LoadSnapshot.
//
//	weights:
//	  - {competency: COM, source: EVAL, weight: 0.4}
//	pilots:
//	  - id: 1
//	    name: First Officer
//	    scores:
//	      - {competency: COM, source: EVAL, score: 3, date: "2024-03-01"}
//	exercises:
//	  - {id: 1, name: Engine failure after V1, competencies: [FPM, PSD]}
type Snapshot struct {
	Weights   []SnapshotWeight   `koanf:"weights" validate:"dive"`
	Pilots    []SnapshotPilot    `koanf:"pilots" validate:"dive"`
	Exercises []SnapshotExercise `koanf:"exercises" validate:"dive"`
}

// SnapshotWeight is one weight row.
type SnapshotWeight struct {
	Competency string  `koanf:"competency" validate:"required"`
	Source     string  `koanf:"source" validate:"required"`
	Weight     float64 `koanf:"weight" validate:"gte=0,lte=1"`
}

// SnapshotPilot is a pilot with its score history.
type SnapshotPilot struct {
	ID     int64           `koanf:"id" validate:"required"`
	Name   string          `koanf:"name"`
	Scores []SnapshotScore `koanf:"scores" validate:"dive"`
}

// SnapshotScore is one raw score.
type SnapshotScore struct {
	Competency string `koanf:"competency" validate:"required"`
	Source     string `koanf:"source" validate:"required"`
	Score      int    `koanf:"score" validate:"gte=2,lte=5"`
	Date       string `koanf:"date" validate:"required"`
	Comment    string `koanf:"comment"`
}

// SnapshotExercise is one catalog entry.
type SnapshotExercise struct {
	ID           int64    `koanf:"id" validate:"required"`
	Name         string   `koanf:"name"`
	Competencies []string `koanf:"competencies" validate:"min=1,dive,required"`
}

// LoadSnapshot reads a YAML snapshot file into a MemoryStore.
func LoadSnapshot(ctx context.Context, path string, opts ...Option) (*MemoryStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidSnapshot)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	var doc Snapshot
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	seed, err := doc.Options()
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(append(seed, opts...)...), nil
}

// Options validates the document and converts it to store options.
func (doc Snapshot) Options() ([]Option, error) {
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	weights := make([]model.CompetencyWeight, len(doc.Weights))
	for i, w := range doc.Weights {
		weights[i] = model.CompetencyWeight{
			Competency: model.CompetencyCode(w.Competency),
			Source:     model.SourceType(w.Source),
			Weight:     w.Weight,
		}
	}

	var (
		pilots []Pilot
		scores []model.RawScore
	)
	for _, p := range doc.Pilots {
		pilots = append(pilots, Pilot{ID: model.PilotID(p.ID), Name: p.Name})
		for _, s := range p.Scores {
			date, err := parseDate(s.Date)
			if err != nil {
				return nil, fmt.Errorf("%w: pilot %d: %v", ErrInvalidSnapshot, p.ID, err)
			}
			scores = append(scores, model.RawScore{
				PilotID:    model.PilotID(p.ID),
				Competency: model.CompetencyCode(s.Competency),
				Source:     model.SourceType(s.Source),
				Score:      s.Score,
				Date:       date,
				Comment:    s.Comment,
			})
		}
	}

	exercises := make([]model.Exercise, len(doc.Exercises))
	for i, e := range doc.Exercises {
		codes := make([]model.CompetencyCode, len(e.Competencies))
		for j, c := range e.Competencies {
			codes[j] = model.CompetencyCode(c)
		}
		exercises[i] = model.Exercise{ID: e.ID, Name: e.Name, Competencies: codes}
	}

	return []Option{
		WithWeights(weights...),
		WithPilots(pilots...),
		WithScores(scores...),
		WithExercises(exercises...),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(s))
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
