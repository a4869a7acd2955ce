package api

import (
	"net/http"
	"strings"

	"github.com/krawlist/eventengine/internal/domain/cluster"
)

// ReviewHandler serves the review queue of the latest deduplication run.
type ReviewHandler struct {
	reports Reports
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(reports Reports) *ReviewHandler {
	return &ReviewHandler{reports: reports}
}

type reviewResponse struct {
	RunID string               `json:"run_id"`
	Total int                  `json:"total"`
	Items []cluster.ReviewItem `json:"items"`
}

// HandleList handles GET /review requests. Only items below the review
// confidence are listed unless all=true is given.
func (h *ReviewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_review"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rep, ok := h.reports.LastDedupe()
	if !ok {
		writeError(w, http.StatusNotFound, "no_report", NewKind(op, ErrNoReport))
		return
	}
	items := rep.NeedsReview()
	if r.URL.Query().Get("all") == "true" {
		items = rep.Review
	}
	if items == nil {
		items = []cluster.ReviewItem{}
	}
	writeJSON(w, http.StatusOK, reviewResponse{RunID: rep.RunID, Total: len(items), Items: items})
}

// HandleGet handles GET /review/{cluster_id} requests.
func (h *ReviewHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_review"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/review/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rep, ok := h.reports.LastDedupe()
	if !ok {
		writeError(w, http.StatusNotFound, "no_report", NewKind(op, ErrNoReport))
		return
	}
	item, ok := rep.ReviewItem(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, item)
}
