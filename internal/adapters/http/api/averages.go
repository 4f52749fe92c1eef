package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// AveragesHandler serves weighted competency averages.
type AveragesHandler struct {
	planner Planner
}

// NewAveragesHandler creates a new averages handler.
func NewAveragesHandler(planner Planner) *AveragesHandler {
	return &AveragesHandler{planner: planner}
}

// HandleAverages handles GET /averages?pilots=1,2 requests.
func (h *AveragesHandler) HandleAverages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ids, err := parsePilots(r.URL.Query().Get("pilots"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out, err := h.planner.Averages(r.Context(), ids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func parsePilots(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: missing pilots", ErrBadRequest)
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: invalid pilot id %q", ErrBadRequest, p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
