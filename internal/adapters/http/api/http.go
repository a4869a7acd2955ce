// Package api declares the HTTP surface of serve mode: review queue, run
// reports, template validation and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krawlist/eventengine/internal/app"
	"github.com/krawlist/eventengine/pkg/metrics"
)

// Reports exposes the latest batch reports.
type Reports interface {
	LastDedupe() (*app.DedupeReport, bool)
	LastExpansion() (*app.ExpansionReport, bool)
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Reports
	Templates(ctx context.Context) ([]app.TemplateReport, error)
}

// Server wires HTTP routes for the engine API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	reviewHandler    *ReviewHandler
	expansionHandler *ExpansionHandler
	runsHandler      *RunsHandler
}

// NewServer creates a new API server with all handlers. runner may be nil,
// in which case POST /runs/{job} answers 404.
func NewServer(deps Dependencies, statsProvider StatsProvider, runner Runner) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(deps),
		statsHandler:     NewStatsHandler(statsProvider),
		reviewHandler:    NewReviewHandler(deps),
		expansionHandler: NewExpansionHandler(deps),
		runsHandler:      NewRunsHandler(runner),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/review", MetricsMiddleware(s.reviewHandler.HandleList, "review"))
	mux.HandleFunc("/review/", MetricsMiddleware(s.reviewHandler.HandleGet, "review_item"))
	mux.HandleFunc("/expansion", MetricsMiddleware(s.expansionHandler.HandleLast, "expansion"))
	mux.HandleFunc("/templates", MetricsMiddleware(s.expansionHandler.HandleTemplates, "templates"))
	mux.HandleFunc("/runs/", MetricsMiddleware(s.runsHandler.HandleRun, "runs"))
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
