// Package model contains domain models passed between layers.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/krawlist/eventengine/internal/domain/textnorm"
)

// Status is the editorial state of a catalog record.
type Status string

// Known statuses. The engine only inspects them to decide which records
// count as already present in the catalog.
const (
	StatusPendingReview Status = "pending-review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusPublished     Status = "published"
	StatusArchived      Status = "archived"
)

// hashLen is the number of hex characters kept from the SHA-256 digest.
const hashLen = 16

// EventRecord is one observation of a real-world event. Title, Date,
// StartTime and Location form its identity; everything else is enrichment
// or provenance.
type EventRecord struct {
	Title     string    `json:"title"`
	Date      Date      `json:"date"`
	StartTime TimeOfDay `json:"start_time"`
	Location  string    `json:"location"`

	EndTime     TimeOfDay `json:"end_time"`
	Description string    `json:"description,omitempty"`
	Address     string    `json:"address,omitempty"`
	Category    string    `json:"category,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Price       string    `json:"price,omitempty"`
	ExternalURL string    `json:"external_url,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`

	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Status     Status  `json:"status,omitempty"`

	Recurring       *RecurrenceSpec `json:"recurring,omitempty"`
	RRule           string          `json:"rrule,omitempty"`
	RecurringParent string          `json:"recurring_parent,omitempty"`
}

// IdentityKey returns the normalized identity tuple the hash is computed over.
func (e *EventRecord) IdentityKey() string {
	return fmt.Sprintf("%s:%s:%s:%s",
		e.Date.String(),
		textnorm.Normalize(e.Title),
		textnorm.Normalize(e.Location),
		e.StartTime.String(),
	)
}

// Hash is the stable identity hash: equal hashes mean the same occurrence.
func (e *EventRecord) Hash() string {
	sum := sha256.Sum256([]byte(e.IdentityKey()))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// IsTemplate reports whether the record carries an enabled recurrence rule,
// either as a recurring block or as an imported RRULE value.
func (e *EventRecord) IsTemplate() bool {
	if e.Recurring != nil {
		return e.Recurring.Enabled
	}
	return e.RRule != ""
}

// Clone returns a deep copy; slices and the recurrence spec are not shared.
func (e *EventRecord) Clone() EventRecord {
	out := *e
	out.Tags = slices.Clone(e.Tags)
	if e.Recurring != nil {
		spec := e.Recurring.Clone()
		out.Recurring = &spec
	}
	return out
}

// RecurrenceSpec is a recurrence rule as authored on a template, before
// validation. Field values are kept verbatim so that validation can report
// exactly what was wrong.
type RecurrenceSpec struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Frequency  string   `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Interval   int      `yaml:"interval,omitempty" json:"interval,omitempty"`
	ByDay      []string `yaml:"by_day,omitempty" json:"by_day,omitempty"`
	StartDate  string   `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate    string   `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	Exceptions []string `yaml:"exceptions,omitempty" json:"exceptions,omitempty"`
}

// Clone returns a deep copy.
func (r RecurrenceSpec) Clone() RecurrenceSpec {
	r.ByDay = slices.Clone(r.ByDay)
	r.Exceptions = slices.Clone(r.Exceptions)
	return r
}
