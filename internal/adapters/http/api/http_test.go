package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/krawlist/eventengine/internal/adapters/http/api"
	"github.com/krawlist/eventengine/internal/app"
	"github.com/krawlist/eventengine/internal/domain/cluster"
	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/recurrence"
	"github.com/krawlist/eventengine/internal/scheduler"
)

type mockDeps struct {
	dedupe       *app.DedupeReport
	expansion    *app.ExpansionReport
	templates    []app.TemplateReport
	templatesErr error
}

func (m *mockDeps) LastDedupe() (*app.DedupeReport, bool) {
	return m.dedupe, m.dedupe != nil
}

func (m *mockDeps) LastExpansion() (*app.ExpansionReport, bool) {
	return m.expansion, m.expansion != nil
}

func (m *mockDeps) Templates(context.Context) ([]app.TemplateReport, error) {
	return m.templates, m.templatesErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

type mockRunner struct {
	err       error
	triggered []string
}

func (m *mockRunner) Trigger(_ context.Context, job string) error {
	if m.err != nil {
		return m.err
	}
	m.triggered = append(m.triggered, job)
	return nil
}

func sampleDedupe() *app.DedupeReport {
	finished := time.Date(2025, 11, 1, 3, 0, 5, 0, time.UTC)
	return &app.DedupeReport{
		RunID:      "run-7",
		FinishedAt: finished,
		Review: []cluster.ReviewItem{
			{ClusterID: "cluster_1_aa11bb22", Title: "Jazz Night", Date: "2025-11-25", DuplicateCount: 2, Confidence: 0.75, RequiresReview: true},
			{ClusterID: "cluster_2_cc33dd44", Title: "Orgelkonzert", Date: "2025-11-30", DuplicateCount: 3, Confidence: 0.95},
		},
	}
}

func sampleTemplates() []app.TemplateReport {
	return []app.TemplateReport{
		{Hash: "a1", Title: "Wochenmarkt", Date: model.MustDate("2025-01-01"), Validation: recurrence.Report{Enabled: true}},
		{Hash: "b2", Title: "Flohmarkt", Date: model.MustDate("2025-01-04"), Validation: recurrence.Report{Enabled: true, Errors: []string{"unknown frequency"}}},
	}
}

func newMux(deps *mockDeps, stats api.StatsProvider, runner api.Runner) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, stats, runner).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServerRoutes(t *testing.T) {
	Convey("Given a server after one deduplication and one expansion run", t, func() {
		deps := &mockDeps{
			dedupe:    sampleDedupe(),
			expansion: &app.ExpansionReport{RunID: "run-8", Today: model.MustDate("2025-11-01"), Stats: app.ExpansionStats{Created: 4}},
			templates: sampleTemplates(),
		}
		stats := &mockStatsProvider{stats: map[string]any{"schedule": "0 3 * * *"}}
		runner := &mockRunner{}
		mux := newMux(deps, stats, runner)

		Convey("Then /healthz reports the last runs", func() {
			w := do(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["status"], ShouldEqual, "ok")
			So(body["last_dedupe"], ShouldEqual, "2025-11-01T03:00:05Z")
		})

		Convey("Then /metrics serves Prometheus text", func() {
			do(mux, http.MethodGet, "/healthz")
			w := do(mux, http.MethodGet, "/metrics")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then /stats returns the provider's stats", func() {
			w := do(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"schedule":"0 3 * * *"`)
		})

		Convey("Then /review lists only items that need review", func() {
			w := do(mux, http.MethodGet, "/review")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body struct {
				RunID string               `json:"run_id"`
				Total int                  `json:"total"`
				Items []cluster.ReviewItem `json:"items"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.RunID, ShouldEqual, "run-7")
			So(body.Total, ShouldEqual, 1)
			So(body.Items[0].ClusterID, ShouldEqual, "cluster_1_aa11bb22")
		})

		Convey("Then /review?all=true lists every cluster", func() {
			w := do(mux, http.MethodGet, "/review?all=true")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"total":2`)
		})

		Convey("Then /review/{id} returns one item", func() {
			w := do(mux, http.MethodGet, "/review/cluster_2_cc33dd44")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Orgelkonzert")
		})

		Convey("Then an unknown cluster is 404", func() {
			w := do(mux, http.MethodGet, "/review/cluster_9_00000000")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.String(), ShouldContainSubstring, `"code":"not_found"`)
		})

		Convey("Then a nested review path is rejected", func() {
			w := do(mux, http.MethodGet, "/review/a/b")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then /expansion returns the last report", func() {
			w := do(mux, http.MethodGet, "/expansion")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"run_id":"run-8"`)
			So(w.Body.String(), ShouldContainSubstring, `"today":"2025-11-01"`)
		})

		Convey("Then /templates?invalid=true filters valid rules", func() {
			w := do(mux, http.MethodGet, "/templates?invalid=true")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body []app.TemplateReport
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body, ShouldHaveLength, 1)
			So(body[0].Title, ShouldEqual, "Flohmarkt")
		})

		Convey("Then POST /runs/expand triggers the job", func() {
			w := do(mux, http.MethodPost, "/runs/expand")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(runner.triggered, ShouldResemble, []string{"expand"})
		})

		Convey("Then GET on a POST route is 404", func() {
			w := do(mux, http.MethodGet, "/runs/expand")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods are 404", func() {
			So(do(mux, http.MethodPost, "/review").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodDelete, "/expansion").Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a server before any run", t, func() {
		mux := newMux(&mockDeps{templatesErr: errors.New("catalog unreadable")}, nil, nil)

		Convey("Then reports are 404 with no_report", func() {
			for _, path := range []string{"/review", "/review/cluster_1_aa11bb22", "/expansion"} {
				w := do(mux, http.MethodGet, path)
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, `"code":"no_report"`)
			}
		})

		Convey("Then /stats is empty", func() {
			w := do(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "{}\n")
		})

		Convey("Then a template error is 500", func() {
			w := do(mux, http.MethodGet, "/templates")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldContainSubstring, "catalog unreadable")
		})

		Convey("Then runs cannot be triggered without a runner", func() {
			So(do(mux, http.MethodPost, "/runs/expand").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRunsErrors(t *testing.T) {
	Convey("Given a runner that refuses", t, func() {
		cases := []struct {
			err  error
			code int
		}{
			{fmt.Errorf("%w: archive", scheduler.ErrUnknownJob), http.StatusNotFound},
			{fmt.Errorf("%w: expand", scheduler.ErrBusy), http.StatusConflict},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			mux := newMux(&mockDeps{}, nil, &mockRunner{err: tc.err})
			w := do(mux, http.MethodPost, "/runs/expand")
			So(w.Code, ShouldEqual, tc.code)
		}
	})
}
