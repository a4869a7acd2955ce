package recurrence

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/krawlist/eventengine/internal/domain/model"
)

// Report collects validation findings for one rule. Errors make the rule
// unusable; warnings are informational.
type Report struct {
	Enabled  bool     `json:"enabled"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether no errors were found.
func (r Report) Valid() bool { return len(r.Errors) == 0 }

// Usable reports whether the rule should be expanded.
func (r Report) Usable() bool { return r.Enabled && r.Valid() }

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks spec and returns its findings.
func Validate(spec *model.RecurrenceSpec, templateDate model.Date) Report {
	_, rep := Compile(spec, templateDate)
	return rep
}

// Compile validates spec and converts it into a typed Rule. The Rule is only
// meaningful when the report is Usable. Compile never panics on bad input.
func Compile(spec *model.RecurrenceSpec, templateDate model.Date) (Rule, Report) {
	var rep Report
	if spec == nil {
		rep.warnf("no recurrence rule")
		return Rule{}, rep
	}
	rep.Enabled = spec.Enabled
	if !spec.Enabled {
		rep.warnf("rule is disabled")
		return Rule{}, rep
	}

	var rule Rule

	freqText := strings.ToLower(strings.TrimSpace(spec.Frequency))
	switch freq, ok := frequencies[freqText]; {
	case freqText == "":
		rep.errorf("frequency is required")
	case !ok:
		rep.errorf("unknown frequency %q (want daily, weekly, biweekly, monthly or yearly)", spec.Frequency)
	default:
		rule.Frequency = freq
	}

	switch {
	case spec.Interval == 0:
		rule.Interval = 1
	case spec.Interval < 0:
		rep.errorf("interval must be >= 1, got %d", spec.Interval)
	default:
		rule.Interval = spec.Interval
	}

	seen := make(map[time.Weekday]bool)
	for _, code := range spec.ByDay {
		wd, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(code))]
		if !ok {
			rep.errorf("invalid weekday %q in by_day (want MO, TU, WE, TH, FR, SA or SU)", code)
			continue
		}
		if !seen[wd] {
			seen[wd] = true
			rule.ByDay = append(rule.ByDay, wd)
		}
	}
	slices.Sort(rule.ByDay)
	if len(rule.ByDay) > 0 && rule.Frequency != "" && rule.Frequency != Weekly && rule.Frequency != Biweekly {
		rep.warnf("by_day is ignored for %s rules", rule.Frequency)
		rule.ByDay = nil
	}

	if strings.TrimSpace(spec.StartDate) == "" {
		if templateDate.IsZero() {
			rep.errorf("start_date is missing and the template has no date")
		} else {
			rep.warnf("start_date is missing; template date %s is used", templateDate)
		}
	} else if d, err := model.ParseDate(spec.StartDate); err != nil {
		rep.errorf("start_date: invalid date %q (want YYYY-MM-DD)", spec.StartDate)
	} else {
		rule.Start = d
	}

	if strings.TrimSpace(spec.EndDate) != "" {
		d, err := model.ParseDate(spec.EndDate)
		switch {
		case err != nil:
			rep.errorf("end_date: invalid date %q (want YYYY-MM-DD)", spec.EndDate)
		case d.Before(rule.Anchor(templateDate)):
			rep.errorf("end_date %s is before start_date %s", d, rule.Anchor(templateDate))
		default:
			rule.End = d
		}
	}

	for _, text := range spec.Exceptions {
		d, err := model.ParseDate(text)
		if err != nil {
			rep.errorf("exceptions: invalid date %q (want YYYY-MM-DD)", text)
			continue
		}
		rule.Exceptions = append(rule.Exceptions, d)
	}
	sort.Slice(rule.Exceptions, func(i, j int) bool { return rule.Exceptions[i].Before(rule.Exceptions[j]) })

	anchor := rule.Anchor(templateDate)
	switch {
	case anchor.IsZero():
	case rule.Frequency == Monthly && anchor.Day() > 28:
		rep.warnf("day %d does not exist in every month; shorter months use their last day", anchor.Day())
	case rule.Frequency == Yearly && anchor.Month() == time.February && anchor.Day() == 29:
		rep.warnf("February 29 falls back to February 28 in non-leap years")
	}

	return rule, rep
}
