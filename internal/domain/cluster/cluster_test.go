package cluster_test

import (
	"strings"
	"testing"

	"github.com/krawlist/eventengine/internal/domain/cluster"
	"github.com/krawlist/eventengine/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func jazzA() model.EventRecord {
	return model.EventRecord{
		Title:       "Jazz Night",
		Date:        model.MustDate("2025-11-25"),
		StartTime:   model.Clock(20, 0),
		Location:    "Freiheitshalle Hof",
		Tags:        []string{"jazz", "live"},
		ExternalURL: "https://a.example/jazz",
		Organizer:   "Kulturamt Hof",
	}
}

func jazzB() model.EventRecord {
	return model.EventRecord{
		Title:       "Jazz-Night",
		Date:        model.MustDate("2025-11-25"),
		StartTime:   model.Clock(20, 15),
		Location:    "Freiheitshalle",
		Tags:        []string{"concert", "jazz"},
		ExternalURL: "https://b.example/events/42",
		ImageURL:    "https://b.example/jazz.jpg",
		Price:       "15 EUR",
	}
}

func TestManagerFindOrCreate(t *testing.T) {
	Convey("Given a cluster manager", t, func() {
		m := cluster.NewManager()

		Convey("When two sources report the same concert", func() {
			idA := m.FindOrCreate(jazzA(), "source-a")
			idB := m.FindOrCreate(jazzB(), "source-b")
			c, ok := m.Cluster(idA)

			Convey("Then both land in one cluster", func() {
				So(ok, ShouldBeTrue)
				So(idB, ShouldEqual, idA)
				So(c.Size(), ShouldEqual, 2)
				So(c.Sources, ShouldResemble, []string{"source-a", "source-b"})
				So(c.Confidence, ShouldEqual, 0.75)
				So(c.RequiresReview(), ShouldBeTrue)
				So(m.Stats().FuzzyMatches, ShouldEqual, 1)
			})

			Convey("Then the merged record unions the tags", func() {
				merged := c.Merge()
				So(merged.Tags, ShouldResemble, []string{"concert", "jazz", "live"})
				So(merged.DuplicateCount, ShouldEqual, 2)
				So(merged.AdditionalURLs, ShouldHaveLength, 2)
				So(merged.VerifiedSources, ShouldResemble, []string{"source-a", "source-b"})
			})

			Convey("Then the cluster id has the expected shape", func() {
				So(idA, ShouldStartWith, "cluster_1_")
				So(len(strings.TrimPrefix(idA, "cluster_1_")), ShouldEqual, 8)
			})
		})

		Convey("When records share a title but not a date", func() {
			a := jazzA()
			b := jazzA()
			b.Date = b.Date.AddDays(7)

			idA := m.FindOrCreate(a, "source-a")
			idB := m.FindOrCreate(b, "source-a")

			Convey("Then they never cluster", func() {
				So(idB, ShouldNotEqual, idA)
				So(m.Clusters(), ShouldHaveLength, 2)
			})
		})

		Convey("When the same record arrives from three sources", func() {
			for _, src := range []string{"a", "b", "c"} {
				m.FindOrCreate(jazzA(), src)
			}
			c := m.Clusters()[0]

			Convey("Then the exact hash short-circuit is used", func() {
				So(m.Clusters(), ShouldHaveLength, 1)
				So(m.Stats().ExactDuplicates, ShouldEqual, 2)
				So(c.Confidence, ShouldEqual, 0.95)
				So(c.RequiresReview(), ShouldBeFalse)
			})
		})

		Convey("When a record has no source", func() {
			rec := jazzA()
			id := m.FindOrCreate(rec, "")
			c, _ := m.Cluster(id)

			So(c.Sources, ShouldResemble, []string{"unknown"})
		})

		Convey("When the caller mutates its record afterwards", func() {
			rec := jazzA()
			id := m.FindOrCreate(rec, "a")
			rec.Tags[0] = "mutated"
			c, _ := m.Cluster(id)

			So(c.Members[0].Tags[0], ShouldEqual, "jazz")
		})
	})
}

func TestManagerDeterminism(t *testing.T) {
	Convey("Given a fixed input sequence", t, func() {
		inputs := []model.EventRecord{jazzA(), jazzB()}
		other := jazzA()
		other.Title = "Kinderflohmarkt"
		other.Location = "Festplatz"
		inputs = append(inputs, other, jazzA())

		run := func() ([]string, []cluster.Merged) {
			m := cluster.NewManager()
			var ids []string
			for i, rec := range inputs {
				ids = append(ids, m.FindOrCreate(rec, []string{"a", "b", "c", "d"}[i]))
			}
			return ids, m.Merged()
		}

		Convey("When clustering it twice in fresh managers", func() {
			ids1, merged1 := run()
			ids2, merged2 := run()

			Convey("Then assignments and merged records are identical", func() {
				So(ids2, ShouldResemble, ids1)
				So(merged2, ShouldResemble, merged1)
				So(ids1[0], ShouldEqual, ids1[1])
				So(ids1[2], ShouldNotEqual, ids1[0])
				So(ids1[3], ShouldEqual, ids1[0])
			})
		})
	})
}

func TestManagerOptions(t *testing.T) {
	Convey("Given a strict threshold", t, func() {
		m := cluster.NewManager(cluster.WithThreshold(0.99))

		Convey("When near-duplicates arrive", func() {
			idA := m.FindOrCreate(jazzA(), "a")
			idB := m.FindOrCreate(jazzB(), "b")

			So(idB, ShouldNotEqual, idA)
		})
	})

	Convey("Given a venue alias table", t, func() {
		m := cluster.NewManager(cluster.WithVenueResolver(cluster.AliasResolver{
			"freiheitshalle":     "Freiheitshalle Hof",
			"freiheitshalle hof": "Freiheitshalle Hof",
		}))

		Convey("When locations are spelled differently", func() {
			b := jazzB()
			b.Title = "Jazz Night"
			b.StartTime = model.Clock(20, 0)
			idA := m.FindOrCreate(jazzA(), "a")
			idB := m.FindOrCreate(b, "b")

			Convey("Then they resolve to the same identity", func() {
				So(idB, ShouldEqual, idA)
				So(m.Stats().ExactDuplicates, ShouldEqual, 1)
			})
		})
	})

	Convey("Given all-members comparison", t, func() {
		// the richest member stays canonical, so a candidate resembling only
		// a later member is missed unless every member is compared.
		rich := model.EventRecord{
			Title:       "Sommernachtskonzerte",
			Date:        model.MustDate("2025-07-12"),
			Location:    "Marktplatz",
			Description: strings.Repeat("Programm ", 40),
			ImageURL:    "https://x/img.jpg",
		}
		middle := model.EventRecord{
			Title:    "Sommernachtskonz",
			Date:     model.MustDate("2025-07-12"),
			Location: "Marktplatz",
		}
		probe := model.EventRecord{
			Title:    "Sommernachts",
			Date:     model.MustDate("2025-07-12"),
			Location: "Marktplatz",
		}

		Convey("When the probe only resembles a non-canonical member", func() {
			canonicalOnly := cluster.NewManager()
			allMembers := cluster.NewManager(cluster.WithCompareAllMembers(true))
			for _, m := range []*cluster.Manager{canonicalOnly, allMembers} {
				m.FindOrCreate(rich, "a")
				m.FindOrCreate(middle, "b")
				m.FindOrCreate(probe, "c")
			}

			Convey("Then only the all-members manager joins it", func() {
				So(canonicalOnly.Clusters(), ShouldHaveLength, 2)
				So(canonicalOnly.Clusters()[0].Size(), ShouldEqual, 2)
				So(allMembers.Clusters(), ShouldHaveLength, 1)
				So(allMembers.Clusters()[0].Size(), ShouldEqual, 3)
			})
		})
	})
}

func TestCanonicalMerge(t *testing.T) {
	Convey("Given cluster members of varying quality", t, func() {
		sparse := &model.EventRecord{Title: "Lesung", Date: model.MustDate("2025-03-01"), Location: "Bücherei"}
		rich := &model.EventRecord{
			Title:       "Lesung",
			Date:        model.MustDate("2025-03-01"),
			Location:    "Bücherei",
			Description: "Eine Lesung mit Autorin",
			ImageURL:    "https://x/img.jpg",
		}

		Convey("When electing the canonical member", func() {
			So(cluster.ElectCanonical([]*model.EventRecord{sparse, rich}), ShouldEqual, rich)
			So(cluster.QualityScore(rich), ShouldAlmostEqual, 2.3+50, 1e-9)
		})

		Convey("When quality scores tie", func() {
			twin := *sparse
			So(cluster.ElectCanonical([]*model.EventRecord{sparse, &twin}), ShouldEqual, sparse)
		})

		Convey("When members carry fields the canonical lacks", func() {
			m := cluster.NewManager()
			a := jazzA()
			a.Description = strings.Repeat("x", 600)
			a.ImageURL = "https://a.example/img.jpg"
			b := jazzA()
			b.Price = "12 EUR"
			b.EndTime = model.Clock(23, 0)
			b.Address = "Kulmbacher Str. 4"
			b.ImageURL = "https://b.example/other.jpg"
			id := m.FindOrCreate(a, "a")
			m.FindOrCreate(b, "b")
			c, _ := m.Cluster(id)
			merged := c.Merge()

			Convey("Then missing values are backfilled without overwriting", func() {
				So(c.Canonical, ShouldEqual, c.Members[0])
				So(merged.ImageURL, ShouldEqual, "https://a.example/img.jpg")
				So(merged.Price, ShouldEqual, "12 EUR")
				So(merged.EndTime, ShouldResemble, model.Clock(23, 0))
				So(merged.Address, ShouldEqual, "Kulmbacher Str. 4")
				So(merged.Description, ShouldHaveLength, 600)
				So(merged.ConfidenceScore, ShouldEqual, 0.75)
			})

			Convey("Then no member field is lost", func() {
				for _, member := range c.Members {
					if member.ImageURL != "" {
						So(merged.ImageURL, ShouldNotBeEmpty)
					}
					if member.Price != "" {
						So(merged.Price, ShouldNotBeEmpty)
					}
					if member.EndTime.Valid() {
						So(merged.EndTime.Valid(), ShouldBeTrue)
					}
					for _, tag := range member.Tags {
						So(merged.Tags, ShouldContain, tag)
					}
				}
			})
		})

		Convey("When descriptions carry multi-byte characters", func() {
			umlauts := strings.Repeat("ä", 20)
			plain := strings.Repeat("a", 30)
			m := cluster.NewManager()
			a := jazzA()
			a.Description = umlauts
			b := jazzA()
			b.Description = plain
			id := m.FindOrCreate(a, "a")
			m.FindOrCreate(b, "b")
			c, _ := m.Cluster(id)
			merged := c.Merge()

			Convey("Then length is measured in characters, not bytes", func() {
				So(len(umlauts), ShouldBeGreaterThan, len(plain))
				So(cluster.QualityScore(&a), ShouldAlmostEqual, 2.0+30+10, 1e-9)
				So(c.Canonical, ShouldEqual, c.Members[1])
				So(merged.Description, ShouldEqual, plain)
			})
		})

		Convey("When computing data quality", func() {
			So(cluster.DataQuality(sparse), ShouldAlmostEqual, 0.30, 1e-9)
			full := jazzB()
			full.Description = "d"
			full.EndTime = model.Clock(23, 0)
			full.Organizer = "o"
			So(cluster.DataQuality(&full), ShouldAlmostEqual, 1.0, 1e-9)
		})
	})
}

func TestReport(t *testing.T) {
	Convey("Given clusters of different sizes", t, func() {
		m := cluster.NewManager()
		m.FindOrCreate(jazzA(), "a")
		m.FindOrCreate(jazzB(), "b")
		single := jazzA()
		single.Title = "Poetry Slam"
		single.Organizer = "Kulturamt Hof"
		single.Location = "Galeriehaus"
		m.FindOrCreate(single, "c")

		Convey("When building the full review report", func() {
			items := m.Report(false)

			So(items, ShouldHaveLength, 2)
			So(items[0].DuplicateCount, ShouldEqual, 2)
			So(items[0].Sources, ShouldResemble, []cluster.SourceLink{
				{Source: "a", URL: "https://a.example/jazz"},
				{Source: "b", URL: "https://b.example/events/42"},
			})
			So(items[0].RequiresReview, ShouldBeTrue)
			So(items[1].Confidence, ShouldEqual, 0.5)
		})

		Convey("When only duplicates are requested", func() {
			items := m.Report(true)

			So(items, ShouldHaveLength, 1)
			So(items[0].Title, ShouldEqual, items[0].CanonicalData.Title)
		})

		Convey("When grouping by organizer", func() {
			patterns := m.OrganizerPatterns()

			So(patterns, ShouldHaveLength, 1)
			So(patterns[0].Organizer, ShouldEqual, "Kulturamt Hof")
			So(patterns[0].EventCount, ShouldEqual, 2)
			So(patterns[0].Sources, ShouldResemble, []string{"a", "b", "c"})
			So(patterns[0].Venues, ShouldResemble, []string{"Freiheitshalle", "Galeriehaus"})
		})

		Convey("When listing assignments", func() {
			So(m.Assignments(), ShouldHaveLength, 3)
		})
	})
}
