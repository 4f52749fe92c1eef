// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	repository "github.com/okian/crewtrain/internal/adapters/repository"
	service "github.com/okian/crewtrain/internal/app"
	"github.com/okian/crewtrain/internal/domain/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Planner is the service surface the handlers need.
type Planner interface {
	Plan(ctx context.Context, req types.PlanRequest) (types.Plan, error)
	PlanBatch(ctx context.Context, req types.BatchRequest) (types.BatchResponse, error)
	Averages(ctx context.Context, pilots []int64) ([]types.PilotAverages, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	plansHandler    *PlansHandler
	averagesHandler *AveragesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(planner Planner, statsProvider StatsProvider) *Server {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		plansHandler:    NewPlansHandler(planner, validate),
		averagesHandler: NewAveragesHandler(planner),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/plans", MetricsMiddleware(s.plansHandler.HandlePlan, "plans"))
	mux.HandleFunc("/plans/batch", MetricsMiddleware(s.plansHandler.HandleBatch, "plans_batch"))
	mux.HandleFunc("/averages", MetricsMiddleware(s.averagesHandler.HandleAverages, "averages"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service failures onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrBadRequest), errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrUnknownPilot):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
