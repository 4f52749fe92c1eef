package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrBadRequest = errors.New("bad request")
	ErrProvider   = errors.New("data provider failed")
)
