package recurrence

import (
	"regexp"
	"sort"
	"strings"

	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/textnorm"
)

// DefaultMinOccurrences is the smallest group DetectPatterns considers.
const DefaultMinOccurrences = 3

var (
	monthNames = `januar|jan|februar|feb|märz|maerz|mär|april|apr|mai|juni|jun|juli|jul|august|aug|september|sep|oktober|okt|november|nov|dezember|dez`
	dateWords  = regexp.MustCompile(`\b\d{1,2}\s*(` + monthNames + `)\b|\b(19|20)\d{2}\b|\b\d{1,2}\b`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Suggestion is a recurrence rule inferred from regularly spaced catalog
// events that share a title and venue.
type Suggestion struct {
	Title        string                `json:"title"`
	Location     string                `json:"location"`
	Frequency    Frequency             `json:"frequency"`
	IntervalDays int                   `json:"interval_days,omitempty"`
	Dates        []model.Date          `json:"dates"`
	Spec         *model.RecurrenceSpec `json:"suggested_rule"`
}

// simplifyTitle drops dates, years and small numbers so that "Stammtisch
// 12. März" and "Stammtisch 9. April" group together.
func simplifyTitle(title string) string {
	s := dateWords.ReplaceAllString(textnorm.Normalize(title), " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// DetectPatterns groups records by simplified title and normalized location
// and suggests a rule for every group of at least minOccurrences distinct
// dates with regular spacing. Records that already are templates or
// instances are ignored.
func DetectPatterns(records []model.EventRecord, minOccurrences int) []Suggestion {
	if minOccurrences < 2 {
		minOccurrences = DefaultMinOccurrences
	}

	type group struct {
		title, location string
		dates           map[model.Date]struct{}
	}
	groups := make(map[string]*group)
	var order []string
	for i := range records {
		rec := &records[i]
		if rec.Recurring != nil || rec.RRule != "" || rec.RecurringParent != "" || rec.Date.IsZero() {
			continue
		}
		title := simplifyTitle(rec.Title)
		if title == "" {
			continue
		}
		key := title + "|" + textnorm.Normalize(rec.Location)
		g, ok := groups[key]
		if !ok {
			g = &group{title: rec.Title, location: rec.Location, dates: map[model.Date]struct{}{}}
			groups[key] = g
			order = append(order, key)
		}
		g.dates[rec.Date] = struct{}{}
	}

	var out []Suggestion
	for _, key := range order {
		g := groups[key]
		if len(g.dates) < minOccurrences {
			continue
		}
		dates := make([]model.Date, 0, len(g.dates))
		for d := range g.dates {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		if s, ok := classify(dates); ok {
			s.Title, s.Location, s.Dates = g.title, g.location, dates
			out = append(out, s)
		}
	}
	return out
}

// classify maps the gaps between sorted dates to a rule.
func classify(dates []model.Date) (Suggestion, bool) {
	gaps := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, dates[i-1].DaysUntil(dates[i]))
	}
	first := dates[0]
	spec := &model.RecurrenceSpec{Enabled: true, StartDate: first.String()}

	if constant(gaps) {
		gap := gaps[0]
		switch {
		case gap%7 == 0:
			spec.Frequency = string(Weekly)
			spec.ByDay = []string{WeekdayCode(first.Weekday())}
			if gap > 7 {
				spec.Interval = gap / 7
			}
			return Suggestion{Frequency: Weekly, IntervalDays: gap, Spec: spec}, true
		case gap == 365 || gap == 366:
			spec.Frequency = string(Yearly)
			return Suggestion{Frequency: Yearly, IntervalDays: gap, Spec: spec}, true
		case gap >= 28 && gap <= 31 && sameDayOfMonth(dates):
			spec.Frequency = string(Monthly)
			return Suggestion{Frequency: Monthly, IntervalDays: gap, Spec: spec}, true
		default:
			spec.Frequency = string(Daily)
			if gap > 1 {
				spec.Interval = gap
			}
			freq := Custom
			if gap == 1 {
				freq = Daily
			}
			return Suggestion{Frequency: freq, IntervalDays: gap, Spec: spec}, true
		}
	}

	for _, g := range gaps {
		if g < 28 || g > 31 {
			return Suggestion{}, false
		}
	}
	if !sameDayOfMonth(dates) {
		return Suggestion{}, false
	}
	spec.Frequency = string(Monthly)
	return Suggestion{Frequency: Monthly, Spec: spec}, true
}

func constant(gaps []int) bool {
	if len(gaps) == 0 {
		return false
	}
	for _, g := range gaps[1:] {
		if g != gaps[0] {
			return false
		}
	}
	return true
}

// sameDayOfMonth allows the month-end clamp: a date on an earlier day is
// fine when it is the last day of its month.
func sameDayOfMonth(dates []model.Date) bool {
	day := dates[0].Day()
	for _, d := range dates[1:] {
		if d.Day() == day {
			continue
		}
		if d.Day() < day && d.AddDays(1).Day() == 1 {
			continue
		}
		return false
	}
	return true
}
