package planner

import "errors"

// Sentinel error kinds for the planner.
var (
	ErrPilotCount = errors.New("planner: one or two pilots required")
	ErrDegenerate = errors.New("planner: degenerate balance solution")
)
