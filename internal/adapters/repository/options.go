package repository

import "github.com/okian/crewtrain/internal/domain/model"

// Option seeds a MemoryStore at construction.
type Option func(*dataset)

// WithPilots registers pilots.
func WithPilots(pilots ...Pilot) Option {
	return func(d *dataset) {
		for _, p := range pilots {
			d.putPilot(p)
		}
	}
}

// WithScores appends raw scores and registers their pilots.
func WithScores(scores ...model.RawScore) Option {
	return func(d *dataset) {
		for _, s := range scores {
			d.addScore(s)
		}
	}
}

// WithWeights sets the weight rows.
func WithWeights(rows ...model.CompetencyWeight) Option {
	return func(d *dataset) {
		d.weights = append([]model.CompetencyWeight(nil), rows...)
	}
}

// WithExercises adds exercises to the catalog, replacing equal ids.
func WithExercises(exercises ...model.Exercise) Option {
	return func(d *dataset) {
		for _, ex := range exercises {
			d.putExercise(ex)
		}
	}
}
