// Package recurrence validates recurrence rules attached to template events
// and expands them into concrete dates.
package recurrence

import (
	"strings"
	"time"

	"github.com/krawlist/eventengine/internal/domain/model"
)

// Frequency is the base cadence of a rule.
type Frequency string

// Supported frequencies.
const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
	// Custom is only produced by pattern detection for irregular spacing;
	// it is not a valid rule frequency.
	Custom Frequency = "custom"
)

var frequencies = map[string]Frequency{
	"daily":    Daily,
	"weekly":   Weekly,
	"biweekly": Biweekly,
	"monthly":  Monthly,
	"yearly":   Yearly,
}

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// WeekdayCode returns the two-letter code for d.
func WeekdayCode(d time.Weekday) string {
	return strings.ToUpper(d.String()[:2])
}

// Rule is a validated recurrence rule.
type Rule struct {
	Frequency Frequency
	Interval  int
	// ByDay restricts weekly and biweekly rules to these weekdays.
	ByDay []time.Weekday
	// Start anchors the cadence. Zero means the template's own date.
	Start model.Date
	// End is the inclusive last day. Zero means open-ended.
	End        model.Date
	Exceptions []model.Date
}

// Anchor returns the date the cadence is computed from.
func (r Rule) Anchor(templateDate model.Date) model.Date {
	if !r.Start.IsZero() {
		return r.Start
	}
	return templateDate
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

func (r Rule) excluded() map[model.Date]struct{} {
	out := make(map[model.Date]struct{}, len(r.Exceptions))
	for _, d := range r.Exceptions {
		out[d] = struct{}{}
	}
	return out
}
