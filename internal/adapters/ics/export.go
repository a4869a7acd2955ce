// Package ics renders catalog records as an iCalendar feed. Templates are
// written once with an RRULE; their materialized instances are left out.
package ics

import (
	"context"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/recurrence"
	"github.com/krawlist/eventengine/pkg/logger"
)

const (
	localLayout = "20060102T150405"
	dateLayout  = "20060102"

	defaultProductID = "-//krawlist//eventengine//DE"
	defaultUIDDomain = "eventengine"
	defaultDuration  = 2 * time.Hour
)

// Stats counts what an export wrote.
type Stats struct {
	Events    int `json:"events"`
	Recurring int `json:"recurring"`
	Skipped   int `json:"skipped"`
}

// Exporter builds calendars from catalog records.
type Exporter struct {
	name      string
	uidDomain string
	loc       *time.Location
	duration  time.Duration
	now       func() time.Time
	log       logger.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithName sets the calendar display name.
func WithName(name string) Option {
	return func(e *Exporter) { e.name = name }
}

// WithUIDDomain sets the domain part of event UIDs.
func WithUIDDomain(domain string) Option {
	return func(e *Exporter) {
		if domain != "" {
			e.uidDomain = domain
		}
	}
}

// WithLocation sets the zone start times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(e *Exporter) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithDefaultDuration sets the length of timed events without an end time.
func WithDefaultDuration(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.duration = d
		}
	}
}

// WithNow overrides the DTSTAMP clock.
func WithNow(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger sets the logger used for skipped records.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) { e.log = l }
}

// NewExporter creates an Exporter. Start times default to Europe/Berlin,
// falling back to UTC when the zone database is unavailable.
func NewExporter(opts ...Option) *Exporter {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		loc = time.UTC
	}
	e := &Exporter{
		uidDomain: defaultUIDDomain,
		loc:       loc,
		duration:  defaultDuration,
		now:       time.Now,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calendar builds a calendar from records. Rejected records and instances of
// exported templates are skipped.
func (e *Exporter) Calendar(ctx context.Context, records []model.EventRecord) (*ical.Calendar, Stats) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(defaultProductID)
	if e.name != "" {
		cal.SetXWRCalName(e.name)
	}

	templates := make(map[string]struct{})
	for i := range records {
		if records[i].IsTemplate() {
			templates[records[i].Hash()] = struct{}{}
		}
	}

	var stats Stats
	stamp := e.now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.Status == model.StatusRejected {
			stats.Skipped++
			continue
		}
		if _, ok := templates[rec.RecurringParent]; ok && rec.RecurringParent != "" {
			stats.Skipped++
			continue
		}

		ev := cal.AddEvent(rec.Hash() + "@" + e.uidDomain)
		ev.SetDtStampTime(stamp)
		ev.SetSummary(rec.Title)
		if loc := location(rec); loc != "" {
			ev.SetLocation(loc)
		}
		if rec.Description != "" {
			ev.SetDescription(rec.Description)
		}
		if rec.ExternalURL != "" {
			ev.SetURL(rec.ExternalURL)
		}
		if len(rec.Tags) > 0 {
			ev.SetProperty(ical.ComponentPropertyCategories, strings.Join(rec.Tags, ","))
		}
		if rec.Organizer != "" {
			ev.SetProperty(ical.ComponentPropertyComment, "Organizer: "+rec.Organizer)
		}

		start := rec.Date
		rule, ok := e.rule(ctx, rec)
		if ok {
			start = rule.Anchor(rec.Date)
		}
		e.setTimes(ev, rec, start)
		if ok && e.addRule(ctx, ev, rec, rule) {
			stats.Recurring++
		}
		stats.Events++
	}
	return cal, stats
}

// Write serializes the calendar for records to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, records []model.EventRecord) (Stats, error) {
	cal, stats := e.Calendar(ctx, records)
	if err := cal.SerializeTo(w); err != nil {
		return stats, err
	}
	return stats, nil
}

func location(rec *model.EventRecord) string {
	switch {
	case rec.Location != "" && rec.Address != "":
		return rec.Location + ", " + rec.Address
	case rec.Location != "":
		return rec.Location
	default:
		return rec.Address
	}
}

func (e *Exporter) tzid() ical.PropertyParameter {
	return &ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{e.loc.String()}}
}

func dateValue() ical.PropertyParameter {
	return &ical.KeyValues{Key: string(ical.ParameterValue), Value: []string{"DATE"}}
}

func (e *Exporter) setTimes(ev *ical.VEvent, rec *model.EventRecord, day model.Date) {
	if !rec.StartTime.Valid() {
		ev.SetProperty(ical.ComponentPropertyDtStart, day.Time.Format(dateLayout), dateValue())
		ev.SetProperty(ical.ComponentPropertyDtEnd, day.AddDays(1).Time.Format(dateLayout), dateValue())
		return
	}
	start := rec.StartTime.On(day, e.loc)
	end := start.Add(e.duration)
	if rec.EndTime.Valid() && rec.EndTime.Minutes() > rec.StartTime.Minutes() {
		end = rec.EndTime.On(day, e.loc)
	}
	ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(localLayout), e.tzid())
	ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(localLayout), e.tzid())
}

// rule compiles the template's recurrence, from its recurring block or an
// imported RRULE value.
func (e *Exporter) rule(ctx context.Context, rec *model.EventRecord) (recurrence.Rule, bool) {
	if !rec.IsTemplate() {
		return recurrence.Rule{}, false
	}
	spec := rec.Recurring
	if spec == nil {
		parsed, err := recurrence.ParseRRule(rec.RRule, rec.Date)
		if err != nil {
			e.log.Warn(ctx, "ics: rrule not exportable",
				logger.String("hash", rec.Hash()), logger.Error(err))
			return recurrence.Rule{}, false
		}
		spec = &parsed
	}
	rule, rep := recurrence.Compile(spec, rec.Date)
	if !rep.Usable() {
		return recurrence.Rule{}, false
	}
	return rule, true
}

func (e *Exporter) addRule(ctx context.Context, ev *ical.VEvent, rec *model.EventRecord, rule recurrence.Rule) bool {
	opt, err := rule.Options(rec.Date)
	if err != nil {
		e.log.Warn(ctx, "ics: rule not exportable",
			logger.String("hash", rec.Hash()), logger.Error(err))
		return false
	}
	// UNTIL must cover the whole last day of timed events.
	if !rule.End.IsZero() {
		last := rule.End
		if rec.StartTime.Valid() {
			opt.Until = time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 59, 0, e.loc).UTC()
		} else {
			opt.Until = last.Time
		}
	}
	ev.AddRrule(opt.RRuleString())

	for _, ex := range rule.Exceptions {
		if rec.StartTime.Valid() {
			ev.AddExdate(rec.StartTime.On(ex, e.loc).Format(localLayout), e.tzid())
		} else {
			ev.AddExdate(ex.Time.Format(dateLayout), dateValue())
		}
	}
	return true
}
