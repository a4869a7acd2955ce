package recurrence

import (
	"time"

	"github.com/krawlist/eventengine/internal/domain/model"
)

// MaxOccurrences caps a single expansion.
const MaxOccurrences = 1000

// Result is the output of one expansion.
type Result struct {
	Dates []model.Date
	// Truncated is set when more dates existed beyond the cap.
	Truncated bool
}

// Horizon returns the inclusive last day of a window of lookaheadDays days
// starting today, cut short by the rule's end date.
func Horizon(today model.Date, lookaheadDays int, end model.Date) model.Date {
	last := today.AddDays(lookaheadDays - 1)
	if !end.IsZero() && end.Before(last) {
		return end
	}
	return last
}

// Occurrences expands r between today and horizon, both inclusive, with the
// default cap.
func Occurrences(r Rule, templateDate, today, horizon model.Date) Result {
	return Generate(r, templateDate, today, horizon, MaxOccurrences)
}

// Generate expands r. The cadence is computed from the rule's anchor so that
// repeated runs on different days produce the same phase. Dates before today
// or the anchor, after the horizon or the rule's end, and excepted dates are
// left out. When a month lacks the anchor day the month's last day is used,
// and later months go back to the anchor day.
func Generate(r Rule, templateDate, today, horizon model.Date, limit int) Result {
	anchor := r.Anchor(templateDate)
	if anchor.IsZero() || r.Frequency == "" {
		return Result{}
	}
	last := horizon
	if !r.End.IsZero() {
		last = model.EarlierOf(last, r.End)
	}
	if limit <= 0 {
		limit = MaxOccurrences
	}
	c := &collector{
		from:  model.LaterOf(anchor, today),
		last:  last,
		limit: limit,
		skip:  r.excluded(),
	}
	if c.last.Before(c.from) {
		return Result{}
	}

	step := r.interval()
	switch r.Frequency {
	case Daily:
		c.everyDays(anchor, step)
	case Weekly, Biweekly:
		weeks := step
		if r.Frequency == Biweekly {
			weeks *= 2
		}
		if len(r.ByDay) == 0 {
			c.everyDays(anchor, 7*weeks)
		} else {
			c.onWeekdays(anchor, weeks, r.ByDay)
		}
	case Monthly:
		c.everyMonths(anchor, step)
	case Yearly:
		c.everyMonths(anchor, 12*step)
	}
	return c.result
}

type collector struct {
	from, last model.Date
	limit      int
	skip       map[model.Date]struct{}
	result     Result
}

// add offers d in ascending order and reports whether to keep going.
func (c *collector) add(d model.Date) bool {
	if d.After(c.last) {
		return false
	}
	if d.Before(c.from) {
		return true
	}
	if _, ok := c.skip[d]; ok {
		return true
	}
	if len(c.result.Dates) == c.limit {
		c.result.Truncated = true
		return false
	}
	c.result.Dates = append(c.result.Dates, d)
	return true
}

func (c *collector) everyDays(anchor model.Date, days int) {
	k := 0
	if gap := anchor.DaysUntil(c.from); gap > 0 {
		k = gap / days
	}
	for ; c.add(anchor.AddDays(k * days)); k++ {
	}
}

// onWeekdays walks day by day and keeps the listed weekdays in every
// weeks-th week counted from the anchor's Monday-based week.
func (c *collector) onWeekdays(anchor model.Date, weeks int, days []time.Weekday) {
	wanted := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}
	base := weekStart(anchor)
	for d := c.from; !d.After(c.last); d = d.AddDays(1) {
		if !wanted[d.Weekday()] {
			continue
		}
		if (base.DaysUntil(weekStart(d))/7)%weeks != 0 {
			continue
		}
		if !c.add(d) {
			return
		}
	}
}

func (c *collector) everyMonths(anchor model.Date, months int) {
	k := 0
	gap := (c.from.Year()-anchor.Year())*12 + int(c.from.Month()-anchor.Month())
	if gap/months > 1 {
		k = gap/months - 1
	}
	for ; c.add(addMonthsClamped(anchor, k*months)); k++ {
	}
}

func weekStart(d model.Date) model.Date {
	return d.AddDays(-((int(d.Weekday()) + 6) % 7))
}

// addMonthsClamped moves anchor by n months keeping its day, or the last day
// of the target month when that day does not exist.
func addMonthsClamped(anchor model.Date, n int) model.Date {
	idx := anchor.Year()*12 + int(anchor.Month()) - 1 + n
	year, month := idx/12, time.Month(idx%12+1)
	return model.NewDate(year, month, min(anchor.Day(), daysIn(year, month)))
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
