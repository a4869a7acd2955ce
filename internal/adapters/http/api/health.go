package api

import (
	"net/http"
	"time"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	reports Reports
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(reports Reports) *HealthHandler {
	return &HealthHandler{reports: reports, started: time.Now()}
}

type healthResponse struct {
	Status        string     `json:"status"`
	Uptime        string     `json:"uptime"`
	LastDedupe    *time.Time `json:"last_dedupe,omitempty"`
	LastExpansion *time.Time `json:"last_expansion,omitempty"`
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	resp := healthResponse{Status: "ok", Uptime: time.Since(h.started).Round(time.Second).String()}
	if rep, ok := h.reports.LastDedupe(); ok {
		resp.LastDedupe = &rep.FinishedAt
	}
	if rep, ok := h.reports.LastExpansion(); ok {
		resp.LastExpansion = &rep.FinishedAt
	}
	writeJSON(w, http.StatusOK, resp)
}
