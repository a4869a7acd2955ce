package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/teambition/rrule-go"
)

var toRRuleWeekday = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Options converts r into rrule-go options anchored at the rule's start (or
// templateDate). The month-end clamp is expressed with BYSETPOS=-1 over the
// candidate days so that RFC 5545 consumers produce the same dates.
func (r Rule) Options(templateDate model.Date) (rrule.ROption, error) {
	anchor := r.Anchor(templateDate)
	if anchor.IsZero() {
		return rrule.ROption{}, fmt.Errorf("%w: rule has no anchor date", ErrUnsupportedRule)
	}
	opt := rrule.ROption{
		Dtstart:  anchor.Time,
		Interval: r.interval(),
	}

	switch r.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly, Biweekly:
		opt.Freq = rrule.WEEKLY
		if r.Frequency == Biweekly {
			opt.Interval *= 2
		}
		for _, wd := range r.ByDay {
			opt.Byweekday = append(opt.Byweekday, toRRuleWeekday[wd])
		}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		if anchor.Day() > 28 {
			for d := 28; d <= anchor.Day(); d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		}
	case Yearly:
		opt.Freq = rrule.YEARLY
		if anchor.Month() == time.February && anchor.Day() == 29 {
			opt.Bymonth = []int{int(time.February)}
			opt.Bymonthday = []int{28, 29}
			opt.Bysetpos = []int{-1}
		}
	default:
		return rrule.ROption{}, fmt.Errorf("%w: frequency %q", ErrUnsupportedRule, r.Frequency)
	}

	if !r.End.IsZero() {
		opt.Until = r.End.Time
	}
	return opt, nil
}

// RRule renders r as an RFC 5545 RRULE value without the "RRULE:" prefix or
// DTSTART.
func (r Rule) RRule(templateDate model.Date) (string, error) {
	opt, err := r.Options(templateDate)
	if err != nil {
		return "", err
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
	}
	return opt.RRuleString(), nil
}

// ParseRRule converts an RFC 5545 RRULE value, as found in iCal feeds, into
// a recurrence spec. dtstart is used when the value carries no DTSTART.
// Rules this engine cannot express (COUNT, nth-weekday, sub-daily, BY* parts
// that pick days other than the anchor's) are rejected with
// ErrUnsupportedRule.
func ParseRRule(value string, dtstart model.Date) (model.RecurrenceSpec, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return model.RecurrenceSpec{}, fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
	}
	if opt.Count > 0 {
		return model.RecurrenceSpec{}, fmt.Errorf("%w: COUNT is not supported", ErrUnsupportedRule)
	}

	spec := model.RecurrenceSpec{Enabled: true, Interval: opt.Interval}
	switch opt.Freq {
	case rrule.DAILY:
		spec.Frequency = string(Daily)
	case rrule.WEEKLY:
		spec.Frequency = string(Weekly)
	case rrule.MONTHLY:
		spec.Frequency = string(Monthly)
	case rrule.YEARLY:
		spec.Frequency = string(Yearly)
	default:
		return model.RecurrenceSpec{}, fmt.Errorf("%w: frequency %v", ErrUnsupportedRule, opt.Freq)
	}
	if spec.Interval == 1 {
		spec.Interval = 0
	}

	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return model.RecurrenceSpec{}, fmt.Errorf("%w: nth weekday %s", ErrUnsupportedRule, wd.String())
		}
		spec.ByDay = append(spec.ByDay, WeekdayCode(time.Weekday((wd.Day()+1)%7)))
	}
	if len(spec.ByDay) > 0 && opt.Freq != rrule.WEEKLY {
		return model.RecurrenceSpec{}, fmt.Errorf("%w: BYDAY with %v", ErrUnsupportedRule, opt.Freq)
	}

	start := dtstart
	if !opt.Dtstart.IsZero() {
		start = model.DateOf(opt.Dtstart)
	}
	if err := checkDayParts(opt, start); err != nil {
		return model.RecurrenceSpec{}, err
	}
	spec.StartDate = start.String()
	if !opt.Until.IsZero() {
		spec.EndDate = model.DateOf(opt.Until).String()
	}
	return spec, nil
}

// checkDayParts accepts only the BY* parts the rule model can express: none,
// a BYMONTHDAY or BYMONTH naming the anchor's own day or month, and the
// month-end clamp written by Options.
func checkDayParts(opt *rrule.ROption, start model.Date) error {
	switch {
	case len(opt.Byhour) > 0, len(opt.Byminute) > 0, len(opt.Bysecond) > 0:
		return fmt.Errorf("%w: BYHOUR, BYMINUTE and BYSECOND", ErrUnsupportedRule)
	case len(opt.Byweekno) > 0, len(opt.Byyearday) > 0, len(opt.Byeaster) > 0:
		return fmt.Errorf("%w: BYWEEKNO, BYYEARDAY and BYEASTER", ErrUnsupportedRule)
	case len(opt.Bymonthday) == 0 && len(opt.Bymonth) == 0 && len(opt.Bysetpos) == 0:
		return nil
	case start.IsZero():
		return fmt.Errorf("%w: BY* parts without a start date", ErrUnsupportedRule)
	}

	switch opt.Freq {
	case rrule.MONTHLY:
		if len(opt.Bymonth) == 0 && anchorMonthDay(opt.Bymonthday, opt.Bysetpos, start.Day()) {
			return nil
		}
	case rrule.YEARLY:
		monthOK := len(opt.Bymonth) == 0 || sameInts(opt.Bymonth, []int{int(start.Month())})
		if monthOK && anchorYearDay(opt.Bymonthday, opt.Bysetpos, start) {
			return nil
		}
	}
	return fmt.Errorf("%w: BYMONTHDAY=%v BYMONTH=%v BYSETPOS=%v with %v from %s",
		ErrUnsupportedRule, opt.Bymonthday, opt.Bymonth, opt.Bysetpos, opt.Freq, start)
}

// anchorMonthDay reports whether BYMONTHDAY/BYSETPOS select the anchor day
// of every month: either the day itself, or 28..day with BYSETPOS=-1.
func anchorMonthDay(days, setpos []int, anchor int) bool {
	if len(setpos) == 0 {
		return sameInts(days, []int{anchor})
	}
	if anchor <= 28 || !sameInts(setpos, []int{-1}) {
		return false
	}
	want := make([]int, 0, anchor-27)
	for d := 28; d <= anchor; d++ {
		want = append(want, d)
	}
	return sameInts(days, want)
}

// anchorYearDay is anchorMonthDay for yearly rules, where only a Feb 29
// anchor has a clamp pattern.
func anchorYearDay(days, setpos []int, start model.Date) bool {
	switch {
	case len(days) == 0 && len(setpos) == 0:
		return true
	case len(setpos) == 0:
		return sameInts(days, []int{start.Day()})
	}
	return start.Month() == time.February && start.Day() == 29 &&
		sameInts(days, []int{28, 29}) && sameInts(setpos, []int{-1})
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
