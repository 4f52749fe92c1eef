// Package repository provides read access to the planning inputs:
// competency weights, pilot raw scores and the exercise catalog.
package repository

import (
	"context"
	"sort"

	"github.com/okian/crewtrain/internal/domain/model"
)

// Pilot is a registered pilot.
type Pilot struct {
	ID   model.PilotID
	Name string
}

// Counts summarizes what a provider holds.
type Counts struct {
	Pilots    int `json:"pilots"`
	Scores    int `json:"scores"`
	Weights   int `json:"weights"`
	Exercises int `json:"exercises"`
}

// Provider is the read side consumed by the planning service. Every
// call returns data the caller may keep and modify.
type Provider interface {
	// Weights returns every configured (competency, source) weight.
	Weights(ctx context.Context) ([]model.CompetencyWeight, error)

	// Scores returns the raw score history of one pilot.
	// Returns ErrUnknownPilot if the pilot is not registered.
	Scores(ctx context.Context, pilot model.PilotID) ([]model.RawScore, error)

	// Catalog returns the exercises ordered by ascending id.
	Catalog(ctx context.Context) ([]model.Exercise, error)

	// Counts reports the size of each collection.
	Counts(ctx context.Context) (Counts, error)

	Close() error
}

func sortPilots(p []Pilot) {
	sort.Slice(p, func(i, j int) bool { return p[i].ID < p[j].ID })
}
