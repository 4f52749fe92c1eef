package repository

import "errors"

// Sentinel kinds for provider errors.
var (
	ErrUnknownPilot    = errors.New("unknown pilot")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrClosed          = errors.New("provider closed")
)
