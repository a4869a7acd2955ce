package api

import (
	"net/http"
)

// ExpansionHandler serves expansion reports and template validation.
type ExpansionHandler struct {
	deps Dependencies
}

// NewExpansionHandler creates a new expansion handler.
func NewExpansionHandler(deps Dependencies) *ExpansionHandler {
	return &ExpansionHandler{deps: deps}
}

// HandleLast handles GET /expansion requests.
func (h *ExpansionHandler) HandleLast(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_expansion"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rep, ok := h.deps.LastExpansion()
	if !ok {
		writeError(w, http.StatusNotFound, "no_report", NewKind(op, ErrNoReport))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleTemplates handles GET /templates requests. With invalid=true only
// templates with validation errors are returned.
func (h *ExpansionHandler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_templates"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	tpls, err := h.deps.Templates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if r.URL.Query().Get("invalid") == "true" {
		kept := tpls[:0]
		for _, t := range tpls {
			if !t.Validation.Valid() {
				kept = append(kept, t)
			}
		}
		tpls = kept
	}
	writeJSON(w, http.StatusOK, tpls)
}
