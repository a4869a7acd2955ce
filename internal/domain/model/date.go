package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without time-of-day or zone. The wrapped time is
// always midnight UTC so two Dates for the same day compare equal with ==.
type Date struct {
	time.Time
}

// NewDate returns the Date for year, month and day. Out-of-range values are
// normalized the way time.Date does (e.g. Feb 30 becomes Mar 1/2).
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses YYYY-MM-DD. Failures wrap ErrParse.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q (want YYYY-MM-DD)", ErrParse, s)
	}
	return Date{t}, nil
}

// MustDate is ParseDate for literals in tests and tables.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays moves d by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

// DaysUntil returns the signed number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.Sub(d.Time).Hours() / 24)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

// LaterOf returns the later of a and b.
func LaterOf(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// EarlierOf returns the earlier of a and b.
func EarlierOf(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time with minute precision. The zero value means
// "no time given" and never earns a time-proximity bonus.
type TimeOfDay struct {
	minutes int
	set     bool
}

// NoTime is the sentinel for a missing start or end time.
var NoTime = TimeOfDay{}

// Clock returns the TimeOfDay hh:mm.
func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay{minutes: hour*60 + minute, set: true}
}

// ParseTimeOfDay accepts "HH:MM", "H:MM", "HH.MM" and a bare hour "HH".
// An empty string yields NoTime. Failures wrap ErrParse.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoTime, nil
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, " Uhr"), "h")
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '.' })
	if len(parts) == 0 || len(parts) > 2 {
		return NoTime, fmt.Errorf("%w: time %q (want HH:MM)", ErrParse, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return NoTime, fmt.Errorf("%w: time %q (want HH:MM)", ErrParse, s)
	}
	minute := 0
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return NoTime, fmt.Errorf("%w: time %q (want HH:MM)", ErrParse, s)
		}
	}
	return Clock(hour, minute), nil
}

// Valid reports whether a time was given.
func (t TimeOfDay) Valid() bool { return t.set }

// Minutes returns minutes since midnight, or -1 for NoTime.
func (t TimeOfDay) Minutes() int {
	if !t.set {
		return -1
	}
	return t.minutes
}

func (t TimeOfDay) String() string {
	if !t.set {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.minutes/60, t.minutes%60)
}

// On combines the time with a date in loc. NoTime maps to midnight.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	minutes := 0
	if t.set {
		minutes = t.minutes
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, minutes, 0, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
