package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RawEvent is the serialized shape of an EventRecord as it appears in
// Markdown front matter, staging files and the SQLite payload column. All
// date and time fields are text until ParseRawEvent checks them.
type RawEvent struct {
	Title       string   `yaml:"title" json:"title"`
	Date        string   `yaml:"date" json:"date"`
	StartTime   string   `yaml:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime     string   `yaml:"end_time,omitempty" json:"end_time,omitempty"`
	Location    string   `yaml:"location" json:"location"`
	Address     string   `yaml:"address,omitempty" json:"address,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Organizer   string   `yaml:"organizer,omitempty" json:"organizer,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Price       string   `yaml:"price,omitempty" json:"price,omitempty"`
	ExternalURL string   `yaml:"external_url,omitempty" json:"external_url,omitempty"`
	URL         string   `yaml:"url,omitempty" json:"url,omitempty"`
	ImageURL    string   `yaml:"image_url,omitempty" json:"image_url,omitempty"`
	SourceURL   string   `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	Source      string   `yaml:"source,omitempty" json:"source,omitempty"`
	Confidence  float64  `yaml:"confidence,omitempty" json:"confidence,omitempty"`
	Status      string   `yaml:"status,omitempty" json:"status,omitempty"`
	EventHash   string   `yaml:"event_hash,omitempty" json:"event_hash,omitempty"`

	Recurring       *RecurrenceSpec `yaml:"recurring,omitempty" json:"recurring,omitempty"`
	RRule           string          `yaml:"rrule,omitempty" json:"rrule,omitempty"`
	RecurringParent string          `yaml:"recurring_parent,omitempty" json:"recurring_parent,omitempty"`
}

// EventCollection is a staging file of scraped candidates.
type EventCollection struct {
	Version     string     `yaml:"version" json:"version"`
	GeneratedAt string     `yaml:"generated_at,omitempty" json:"generated_at,omitempty"`
	Source      string     `yaml:"source,omitempty" json:"source,omitempty"`
	Events      []RawEvent `yaml:"events" json:"events"`
}

// DecodeCollection reads a staging file in YAML or JSON. A bare list of
// events is accepted as well.
func DecodeCollection(data []byte) (EventCollection, error) {
	var coll EventCollection
	if err := yaml.Unmarshal(data, &coll); err == nil && coll.Events != nil {
		return coll, nil
	}
	var events []RawEvent
	if err := yaml.Unmarshal(data, &events); err != nil {
		return EventCollection{}, fmt.Errorf("decode collection: %w", err)
	}
	return EventCollection{Events: events}, nil
}

// ParseRawEvent converts the serialized shape into a typed record. Malformed
// dates and times wrap ErrParse; a missing title or date wraps
// ErrMissingField.
func ParseRawEvent(raw RawEvent) (EventRecord, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return EventRecord{}, fmt.Errorf("%w: title", ErrMissingField)
	}
	if strings.TrimSpace(raw.Date) == "" {
		return EventRecord{}, fmt.Errorf("%w: date", ErrMissingField)
	}

	date, err := ParseDate(normalizeDateText(raw.Date))
	if err != nil {
		return EventRecord{}, err
	}
	start, err := ParseTimeOfDay(raw.StartTime)
	if err != nil {
		return EventRecord{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseTimeOfDay(raw.EndTime)
	if err != nil {
		return EventRecord{}, fmt.Errorf("end_time: %w", err)
	}

	externalURL := raw.ExternalURL
	if externalURL == "" {
		externalURL = raw.URL
	}

	rec := EventRecord{
		Title:           title,
		Date:            date,
		StartTime:       start,
		Location:        strings.TrimSpace(raw.Location),
		EndTime:         end,
		Description:     strings.TrimSpace(raw.Description),
		Address:         raw.Address,
		Category:        raw.Category,
		Organizer:       raw.Organizer,
		Tags:            append([]string(nil), raw.Tags...),
		Price:           raw.Price,
		ExternalURL:     externalURL,
		ImageURL:        raw.ImageURL,
		SourceURL:       raw.SourceURL,
		Source:          raw.Source,
		Confidence:      raw.Confidence,
		Status:          Status(raw.Status),
		RRule:           strings.TrimSpace(raw.RRule),
		RecurringParent: raw.RecurringParent,
	}
	if raw.Recurring != nil {
		spec := raw.Recurring.Clone()
		rec.Recurring = &spec
	}
	return rec, nil
}

// normalizeDateText accepts the full RFC 3339 timestamps some scrapers emit
// and keeps only the calendar day.
func normalizeDateText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	return s
}

// ToRaw returns the serialized shape of rec, stamped with its identity hash.
func ToRaw(rec *EventRecord) RawEvent {
	raw := RawEvent{
		Title:           rec.Title,
		Date:            rec.Date.String(),
		StartTime:       rec.StartTime.String(),
		EndTime:         rec.EndTime.String(),
		Location:        rec.Location,
		Address:         rec.Address,
		Description:     rec.Description,
		Category:        rec.Category,
		Organizer:       rec.Organizer,
		Tags:            append([]string(nil), rec.Tags...),
		Price:           rec.Price,
		ExternalURL:     rec.ExternalURL,
		ImageURL:        rec.ImageURL,
		SourceURL:       rec.SourceURL,
		Source:          rec.Source,
		Confidence:      rec.Confidence,
		Status:          string(rec.Status),
		EventHash:       rec.Hash(),
		RRule:           rec.RRule,
		RecurringParent: rec.RecurringParent,
	}
	if rec.Recurring != nil {
		spec := rec.Recurring.Clone()
		raw.Recurring = &spec
	}
	return raw
}

// IsParseFailure reports whether err is a per-record parse problem rather
// than an I/O error.
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrMissingField)
}
