package ics_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/krawlist/eventengine/internal/adapters/ics"
	"github.com/krawlist/eventengine/internal/domain/model"
)

func prop(ev *ical.VEvent, p ical.ComponentProperty) string {
	if ip := ev.GetProperty(p); ip != nil {
		return ip.Value
	}
	return ""
}

func TestExporter(t *testing.T) {
	ctx := context.Background()
	fixed := func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

	Convey("Given a catalog with a template, its instance and a single event", t, func() {
		template := model.EventRecord{
			Title:     "Wochenmarkt",
			Date:      model.MustDate("2025-01-01"),
			StartTime: model.Clock(8, 0),
			Location:  "Marktplatz",
			Recurring: &model.RecurrenceSpec{
				Enabled:    true,
				Frequency:  "weekly",
				ByDay:      []string{"WE", "SA"},
				EndDate:    "2025-03-01",
				Exceptions: []string{"2025-01-04"},
			},
		}
		instance := template.Clone()
		instance.Recurring = nil
		instance.Date = model.MustDate("2025-01-08")
		instance.RecurringParent = template.Hash()

		single := model.EventRecord{
			Title:    "Lesenacht",
			Date:     model.MustDate("2025-02-14"),
			Location: "Stadtbücherei",
			Address:  "Hauptstraße 1",
			Tags:     []string{"literatur", "kinder"},
		}
		rejected := single.Clone()
		rejected.Title = "Spam"
		rejected.Status = model.StatusRejected

		exp := ics.NewExporter(ics.WithName("Kalender"), ics.WithLocation(time.UTC), ics.WithNow(fixed))

		Convey("When the calendar is written and parsed back", func() {
			var buf bytes.Buffer
			stats, err := exp.Write(ctx, &buf, []model.EventRecord{template, instance, single, rejected})
			So(err, ShouldBeNil)

			cal, err := ical.ParseCalendar(&buf)
			So(err, ShouldBeNil)
			events := cal.Events()

			Convey("Then instances and rejected records are left out", func() {
				So(stats.Events, ShouldEqual, 2)
				So(stats.Recurring, ShouldEqual, 1)
				So(stats.Skipped, ShouldEqual, 2)
				So(events, ShouldHaveLength, 2)
			})

			Convey("Then the template carries its rule and exceptions", func() {
				ev := events[0]
				So(prop(ev, ical.ComponentPropertyUniqueId), ShouldEqual, template.Hash()+"@eventengine")
				So(prop(ev, ical.ComponentPropertySummary), ShouldEqual, "Wochenmarkt")
				So(prop(ev, ical.ComponentPropertyDtStart), ShouldEqual, "20250101T080000")
				rrule := prop(ev, ical.ComponentPropertyRrule)
				So(rrule, ShouldContainSubstring, "FREQ=WEEKLY")
				So(rrule, ShouldContainSubstring, "BYDAY=WE,SA")
				So(rrule, ShouldContainSubstring, "UNTIL=20250301T235959Z")
				So(prop(ev, ical.ComponentPropertyExdate), ShouldEqual, "20250104T080000")
			})

			Convey("Then the single event is all-day with its address", func() {
				ev := events[1]
				So(prop(ev, ical.ComponentPropertyDtStart), ShouldEqual, "20250214")
				So(prop(ev, ical.ComponentPropertyDtEnd), ShouldEqual, "20250215")
				So(prop(ev, ical.ComponentPropertyLocation), ShouldContainSubstring, "Hauptstraße 1")
				So(prop(ev, ical.ComponentPropertyCategories), ShouldContainSubstring, "literatur")
				So(prop(ev, ical.ComponentPropertyRrule), ShouldBeEmpty)
			})
		})

		Convey("When the template's rule is invalid", func() {
			broken := template.Clone()
			broken.Recurring.Frequency = "fortnightly"
			_, stats := exp.Calendar(ctx, []model.EventRecord{broken})

			Convey("Then it is exported as a plain event", func() {
				So(stats.Events, ShouldEqual, 1)
				So(stats.Recurring, ShouldEqual, 0)
			})
		})

		Convey("When a template only has an imported RRULE", func() {
			imported := template.Clone()
			imported.Recurring = nil
			imported.RRule = "FREQ=MONTHLY;INTERVAL=2"
			cal, stats := exp.Calendar(ctx, []model.EventRecord{imported})

			So(stats.Recurring, ShouldEqual, 1)
			So(prop(cal.Events()[0], ical.ComponentPropertyRrule), ShouldContainSubstring, "FREQ=MONTHLY")
		})
	})
}
