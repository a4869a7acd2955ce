package app

import (
	"time"

	"github.com/krawlist/eventengine/internal/domain/cluster"
	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/recurrence"
)

// ItemFailure is a record skipped because it could not be parsed.
type ItemFailure struct {
	Index  int    `json:"index,omitempty"`
	Target string `json:"target,omitempty"`
	Title  string `json:"title,omitempty"`
	Error  string `json:"error"`
}

// DedupeReport is the outcome of one deduplication run.
type DedupeReport struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Stats         cluster.Stats              `json:"stats"`
	ParseFailures []ItemFailure              `json:"parse_failures,omitempty"`
	Merged        []cluster.Merged           `json:"merged"`
	Review        []cluster.ReviewItem       `json:"review"`
	Organizers    []cluster.OrganizerPattern `json:"organizers,omitempty"`
	Assignments   map[string]string          `json:"-"`
}

// NeedsReview returns the review items below the review confidence.
func (r *DedupeReport) NeedsReview() []cluster.ReviewItem {
	var out []cluster.ReviewItem
	for _, item := range r.Review {
		if item.RequiresReview {
			out = append(out, item)
		}
	}
	return out
}

// ReviewItem returns the review item of a cluster.
func (r *DedupeReport) ReviewItem(clusterID string) (cluster.ReviewItem, bool) {
	for _, item := range r.Review {
		if item.ClusterID == clusterID {
			return item, true
		}
	}
	return cluster.ReviewItem{}, false
}

// PublishReport is the outcome of writing merged records to the catalog.
type PublishReport struct {
	RunID   string              `json:"run_id"`
	Created int                 `json:"created"`
	Skipped int                 `json:"skipped"`
	Failed  int                 `json:"failed"`
	Results []MaterializeResult `json:"results"`
}

func (r *PublishReport) add(res MaterializeResult) {
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// TemplateReport describes one recurring template found in the catalog.
type TemplateReport struct {
	Hash        string            `json:"hash"`
	Title       string            `json:"title"`
	Date        model.Date        `json:"date"`
	Target      string            `json:"target,omitempty"`
	Validation  recurrence.Report `json:"validation"`
	RRule       string            `json:"rrule,omitempty"`
	Occurrences int               `json:"occurrences"`
	Truncated   bool              `json:"truncated,omitempty"`
}

// ExpansionStats are the counters of one expansion run.
type ExpansionStats struct {
	Scanned          int `json:"scanned"`
	Templates        int `json:"templates"`
	InvalidTemplates int `json:"invalid_templates"`
	Generated        int `json:"generated"`
	Created          int `json:"created"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
	LoadErrors       int `json:"load_errors"`
}

// ExpansionReport is the outcome of one expansion run.
type ExpansionReport struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Today      model.Date `json:"today"`
	DryRun     bool       `json:"dry_run,omitempty"`

	Stats        ExpansionStats      `json:"stats"`
	LoadFailures []ItemFailure       `json:"load_failures,omitempty"`
	Templates    []TemplateReport    `json:"templates"`
	Results      []MaterializeResult `json:"results"`
}

func (r *ExpansionReport) add(res MaterializeResult) {
	switch res.Outcome {
	case OutcomeCreated:
		r.Stats.Created++
	case OutcomeSkipped:
		r.Stats.Skipped++
	case OutcomeFailed:
		r.Stats.Failed++
	}
	r.Results = append(r.Results, res)
}
