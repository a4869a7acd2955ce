package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/krawlist/eventengine/internal/adapters/repository"
	"github.com/krawlist/eventengine/internal/app"
	"github.com/krawlist/eventengine/internal/domain/dedupe"
	"github.com/krawlist/eventengine/internal/domain/model"
	"github.com/krawlist/eventengine/internal/domain/recurrence"
	"github.com/krawlist/eventengine/pkg/logger"
	"github.com/krawlist/eventengine/pkg/metrics"
)

func newEngine(store repository.Store, today string, opts ...app.Option) *app.Engine {
	day := model.MustDate(today)
	n := 0
	base := []app.Option{
		app.WithLogger(logger.NewNop()),
		app.WithMetrics(metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))),
		app.WithLocation(time.UTC),
		app.WithClock(func() time.Time { return day.Time.Add(6 * time.Hour) }),
		app.WithRunIDs(func() string { n++; return fmt.Sprintf("run-%d", n) }),
	}
	return app.New(store, append(base, opts...)...)
}

func wochenmarkt() model.EventRecord {
	return model.EventRecord{
		Title:     "Wochenmarkt",
		Date:      model.MustDate("2025-01-01"),
		StartTime: model.Clock(8, 0),
		Location:  "Altstadt Hof",
		Category:  "Markt",
		Status:    model.StatusPublished,
		Recurring: &model.RecurrenceSpec{
			Enabled:    true,
			Frequency:  "weekly",
			ByDay:      []string{"WE", "SA"},
			EndDate:    "2025-03-01",
			Exceptions: []string{"2025-01-04"},
		},
	}
}

func instanceDates(rep *app.ExpansionReport, outcome app.Outcome) []string {
	var out []string
	for _, r := range rep.Results {
		if r.Outcome == outcome {
			out = append(out, r.Date.String())
		}
	}
	return out
}

func TestExpandWeeklyTemplate(t *testing.T) {
	Convey("Given a market held on Wednesdays and Saturdays", t, func() {
		ctx := context.Background()
		tpl := wochenmarkt()
		store := repository.NewMemoryStore(repository.WithRecords(tpl))
		engine := newEngine(store, "2025-01-01")

		Convey("When the first expansion runs", func() {
			rep, err := engine.Expand(ctx)
			So(err, ShouldBeNil)

			Convey("Then every market day up to the end date is generated", func() {
				So(rep.Stats.Templates, ShouldEqual, 1)
				So(rep.Stats.Generated, ShouldEqual, 17)
				So(rep.Templates, ShouldHaveLength, 1)
				So(rep.Templates[0].RRule, ShouldContainSubstring, "BYDAY=WE,SA")
			})

			Convey("Then the template day and the exception are not written", func() {
				So(rep.Stats.Created, ShouldEqual, 16)
				So(rep.Stats.Skipped, ShouldEqual, 1)
				created := instanceDates(rep, app.OutcomeCreated)
				So(created, ShouldNotContain, "2025-01-01")
				So(created, ShouldNotContain, "2025-01-04")
				So(created, ShouldContain, "2025-01-08")
				So(created, ShouldContain, "2025-03-01")
				So(store.Len(), ShouldEqual, 17)
			})

			Convey("Then instances link back to the template", func() {
				cat, err := store.List(ctx)
				So(err, ShouldBeNil)
				for _, rec := range cat.Records() {
					if rec.Date.Equal(tpl.Date) {
						continue
					}
					So(rec.RecurringParent, ShouldEqual, tpl.Hash())
					So(rec.Recurring, ShouldBeNil)
					So(rec.Category, ShouldEqual, "Markt")
				}
			})

			Convey("And a second run creates nothing", func() {
				again, err := engine.Expand(ctx)
				So(err, ShouldBeNil)
				So(again.Stats.Created, ShouldEqual, 0)
				So(again.Stats.Skipped, ShouldEqual, 17)
				So(store.Len(), ShouldEqual, 17)

				last, ok := engine.LastExpansion()
				So(ok, ShouldBeTrue)
				So(last.RunID, ShouldEqual, again.RunID)
			})
		})

		Convey("When a dry run expands", func() {
			rep, err := engine.Expand(ctx, app.DryRun())
			So(err, ShouldBeNil)

			Convey("Then instances are planned but not written", func() {
				So(rep.DryRun, ShouldBeTrue)
				So(rep.Stats.Created, ShouldEqual, 16)
				So(store.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestExpandMonthEnd(t *testing.T) {
	Convey("Given a monthly template on the 31st", t, func() {
		tpl := model.EventRecord{
			Title:    "Monatsabschluss Stammtisch",
			Date:     model.MustDate("2025-01-31"),
			Location: "Gasthof Kiefernhof",
			Recurring: &model.RecurrenceSpec{
				Enabled:   true,
				Frequency: "monthly",
			},
		}
		store := repository.NewMemoryStore(repository.WithRecords(tpl))
		engine := newEngine(store, "2025-01-31")

		rep, err := engine.Expand(context.Background())
		So(err, ShouldBeNil)

		Convey("Then short months fall back to their last day", func() {
			So(instanceDates(rep, app.OutcomeCreated), ShouldResemble,
				[]string{"2025-02-28", "2025-03-31", "2025-04-30"})
		})
	})
}

func TestExpandTemplateProblems(t *testing.T) {
	Convey("Given templates that cannot be expanded", t, func() {
		disabled := wochenmarkt()
		disabled.Title = "Wintermarkt"
		disabled.Recurring.Enabled = false

		invalid := wochenmarkt()
		invalid.Title = "Flohmarkt"
		invalid.Recurring.Frequency = "fortnightly"

		badRRule := model.EventRecord{
			Title:    "Orgelkonzert",
			Date:     model.MustDate("2025-01-05"),
			Location: "St. Michaelis",
			RRule:    "FREQ=SOMETIMES",
		}

		store := repository.NewMemoryStore(repository.WithRecords(disabled, invalid, badRRule))
		engine := newEngine(store, "2025-01-01")

		rep, err := engine.Expand(context.Background())
		So(err, ShouldBeNil)

		Convey("Then disabled rules are listed but not counted", func() {
			So(rep.Templates, ShouldHaveLength, 3)
			So(rep.Stats.Templates, ShouldEqual, 2)
		})

		Convey("Then invalid rules are reported and produce nothing", func() {
			So(rep.Stats.InvalidTemplates, ShouldEqual, 2)
			So(rep.Stats.Generated, ShouldEqual, 0)
			So(store.Len(), ShouldEqual, 3)
		})

		Convey("Then Templates shows the validation findings", func() {
			tpls, err := engine.Templates(context.Background())
			So(err, ShouldBeNil)
			So(tpls, ShouldHaveLength, 3)
			So(tpls[1].Validation.Errors[0], ShouldContainSubstring, "fortnightly")
			So(tpls[2].Validation.Errors[0], ShouldStartWith, "rrule:")
		})
	})
}

func TestExpandRRuleTemplate(t *testing.T) {
	Convey("Given a template imported with an RRULE value", t, func() {
		tpl := model.EventRecord{
			Title:     "Orgelkonzert",
			Date:      model.MustDate("2025-01-05"),
			StartTime: model.Clock(17, 0),
			Location:  "St. Michaelis",
			RRule:     "FREQ=WEEKLY;BYDAY=SU;UNTIL=20250126T235959Z",
		}
		store := repository.NewMemoryStore(repository.WithRecords(tpl))
		engine := newEngine(store, "2025-01-01")

		rep, err := engine.Expand(context.Background())
		So(err, ShouldBeNil)

		Convey("Then its instances are created like any other", func() {
			So(rep.Stats.Templates, ShouldEqual, 1)
			So(instanceDates(rep, app.OutcomeCreated), ShouldResemble,
				[]string{"2025-01-12", "2025-01-19", "2025-01-26"})
		})
	})
}

func TestExpandStorageFailure(t *testing.T) {
	Convey("Given a store that fails one write", t, func() {
		ctx := context.Background()
		broken := model.MustDate("2025-01-08")
		failing := true
		store := repository.NewMemoryStore(
			repository.WithRecords(wochenmarkt()),
			repository.WithPutHook(func(rec model.EventRecord) error {
				if failing && rec.Date.Equal(broken) {
					return errors.New("disk full")
				}
				return nil
			}),
		)
		engine := newEngine(store, "2025-01-01")

		rep, err := engine.Expand(ctx)
		So(err, ShouldBeNil)

		Convey("Then the batch finishes and reports the failure", func() {
			So(rep.Stats.Failed, ShouldEqual, 1)
			So(rep.Stats.Created, ShouldEqual, 15)
			So(instanceDates(rep, app.OutcomeFailed), ShouldResemble, []string{"2025-01-08"})
			for _, r := range rep.Results {
				if r.Outcome == app.OutcomeFailed {
					So(r.Error, ShouldContainSubstring, "disk full")
					So(r.Hash, ShouldNotBeEmpty)
				}
			}
		})

		Convey("And the next run retries the missing instance", func() {
			failing = false
			again, err := engine.Expand(ctx)
			So(err, ShouldBeNil)
			So(again.Stats.Created, ShouldEqual, 1)
			So(instanceDates(again, app.OutcomeCreated), ShouldResemble, []string{"2025-01-08"})
			So(store.Len(), ShouldEqual, 17)
		})
	})
}

func TestExpandSameTitleTemplates(t *testing.T) {
	Convey("Given two flea markets with the same title on the same day in a file catalog", t, func() {
		ctx := context.Background()
		store, err := repository.NewFileStore(t.TempDir())
		So(err, ShouldBeNil)

		market := func(location string, hour int) model.EventRecord {
			return model.EventRecord{
				Title:     "Flohmarkt",
				Date:      model.MustDate("2025-01-01"),
				StartTime: model.Clock(hour, 0),
				Location:  location,
				Recurring: &model.RecurrenceSpec{
					Enabled:   true,
					Frequency: "weekly",
					EndDate:   "2025-01-15",
				},
			}
		}
		for _, rec := range []model.EventRecord{market("Altstadt Hof", 8), market("Theresienstein", 14)} {
			_, err := store.Put(ctx, rec)
			So(err, ShouldBeNil)
		}
		engine := newEngine(store, "2025-01-01")

		rep, err := engine.Expand(ctx)
		So(err, ShouldBeNil)

		Convey("Then both templates and all their instances are stored", func() {
			So(rep.Stats.Templates, ShouldEqual, 2)
			So(rep.Stats.Generated, ShouldEqual, 6)
			So(rep.Stats.Created, ShouldEqual, 4)
			So(rep.Stats.Skipped, ShouldEqual, 2)
			So(rep.Stats.Failed, ShouldEqual, 0)

			cat, err := store.List(ctx)
			So(err, ShouldBeNil)
			So(cat.Entries, ShouldHaveLength, 6)
		})
	})
}

func TestMaterializerCollision(t *testing.T) {
	Convey("Given an instance already written but missing from the index", t, func() {
		ctx := context.Background()
		tpl := wochenmarkt()
		day := model.MustDate("2025-01-08")
		inst := app.Instance(&tpl, day)
		store := repository.NewMemoryStore(repository.WithRecords(inst))
		mat := app.NewMaterializer(store, dedupe.NewHashIndex(),
			app.WithMaterializerLogger(logger.NewNop()))

		res := mat.Materialize(ctx, &tpl, day)

		Convey("Then the store collision is a skip", func() {
			So(res.Outcome, ShouldEqual, app.OutcomeSkipped)
			So(res.Reason, ShouldEqual, app.ReasonCollision)
			So(store.Len(), ShouldEqual, 1)
		})

		Convey("Then a second attempt is caught by the index", func() {
			again := mat.Materialize(ctx, &tpl, day)
			So(again.Outcome, ShouldEqual, app.OutcomeSkipped)
			So(again.Reason, ShouldEqual, app.ReasonInCatalog)
		})
	})

	Convey("Given an instance", t, func() {
		tpl := wochenmarkt()
		inst := app.Instance(&tpl, model.MustDate("2025-01-11"))

		Convey("Then it drops the rule and keeps the identity fields", func() {
			So(inst.Recurring, ShouldBeNil)
			So(inst.RRule, ShouldBeEmpty)
			So(inst.Title, ShouldEqual, tpl.Title)
			So(inst.StartTime, ShouldResemble, tpl.StartTime)
			So(inst.RecurringParent, ShouldEqual, tpl.Hash())
			So(inst.Hash(), ShouldNotEqual, tpl.Hash())
			So(tpl.Recurring, ShouldNotBeNil)
		})
	})
}

func TestDetect(t *testing.T) {
	Convey("Given a catalog with a weekly regulars' table", t, func() {
		var recs []model.EventRecord
		for _, d := range []string{"2025-03-05", "2025-03-12", "2025-03-19", "2025-03-26"} {
			recs = append(recs, model.EventRecord{
				Title:    "Stammtisch",
				Date:     model.MustDate(d),
				Location: "Gasthof Kiefernhof",
			})
		}
		store := repository.NewMemoryStore(repository.WithRecords(recs...))
		engine := newEngine(store, "2025-04-01")

		got, err := engine.Detect(context.Background(), 0)
		So(err, ShouldBeNil)

		Convey("Then a weekly rule is suggested", func() {
			So(got, ShouldHaveLength, 1)
			So(got[0].Frequency, ShouldEqual, recurrence.Weekly)
			So(got[0].Spec.ByDay, ShouldResemble, []string{"WE"})
		})
	})
}
