package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/krawlist/eventengine/internal/scheduler"
)

// Runner starts a named batch job outside its schedule. Errors are matched
// against scheduler.ErrUnknownJob and scheduler.ErrBusy.
type Runner interface {
	Trigger(ctx context.Context, job string) error
}

// RunsHandler triggers batch runs.
type RunsHandler struct {
	runner Runner
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runner Runner) *RunsHandler {
	return &RunsHandler{runner: runner}
}

type runResponse struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}

// HandleRun handles POST /runs/{job} requests.
func (h *RunsHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.trigger_run"
	if r.Method != http.MethodPost || h.runner == nil {
		http.NotFound(w, r)
		return
	}
	job := strings.TrimPrefix(r.URL.Path, "/runs/")
	if job == "" || strings.Contains(job, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	err := h.runner.Trigger(r.Context(), job)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, runResponse{Job: job, Status: "started"})
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, "unknown_job", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, scheduler.ErrBusy):
		writeError(w, http.StatusConflict, "busy", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
