package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/crewtrain/internal/domain/types"
)

// PlansHandler serves plan requests.
type PlansHandler struct {
	planner  Planner
	validate *validator.Validate
}

// NewPlansHandler creates a new plans handler.
func NewPlansHandler(planner Planner, validate *validator.Validate) *PlansHandler {
	return &PlansHandler{planner: planner, validate: validate}
}

// HandlePlan handles POST /plans requests.
func (h *PlansHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.PlanRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	plan, err := h.planner.Plan(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// HandleBatch handles POST /plans/batch requests.
func (h *PlansHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.BatchRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := h.planner.PlanBatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
