package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/krawlist/eventengine/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHashIndex(t *testing.T) {
	Convey("Given a new hash index", t, func() {
		ctx := context.Background()

		Convey("When creating an index with default options", func() {
			d := dedupe.NewHashIndex()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "a1b2c3d4e5f60718"), ShouldBeFalse)
			})
		})

		Convey("When seeding the index with catalog hashes", func() {
			d := dedupe.NewHashIndex(
				dedupe.WithCapacityHint(10),
				dedupe.WithHashes("h1", "h2", "h2", ""),
			)

			Convey("Then duplicates and empty hashes are ignored", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "h1"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "h2"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When recording hashes", func() {
			d := dedupe.NewHashIndex()

			Convey("And the hash is new", func() {
				seen := d.SeenAndRecord(ctx, "hash-1")

				Convey("Then it should return false and record the hash", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
					So(d.SeenAndRecord(ctx, "hash-1"), ShouldBeTrue)
				})
			})

			Convey("And the hash was already seen", func() {
				d.SeenAndRecord(ctx, "hash-1")
				seen := d.SeenAndRecord(ctx, "hash-1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And a known hash is checked again", func() {
				d.SeenAndRecord(ctx, "hash-2")
				d.SeenAndRecord(ctx, "hash-2")

				Convey("Then it is counted once", func() {
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When unrecording hashes", func() {
			d := dedupe.NewHashIndex()
			d.SeenAndRecord(ctx, "hash-1")

			Convey("And the hash exists", func() {
				d.Unrecord(ctx, "hash-1")

				Convey("Then it can be recorded again", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, "hash-1"), ShouldBeFalse)
				})
			})

			Convey("And the hash doesn't exist", func() {
				d.Unrecord(ctx, "missing")

				Convey("Then it should not affect the size", func() {
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When many hashes are recorded", func() {
			d := dedupe.NewHashIndex(dedupe.WithCapacityHint(2))
			for i := 0; i < 5000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("hash-%d", i))
			}

			Convey("Then none is ever evicted", func() {
				So(d.Size(), ShouldEqual, 5000)
				So(d.SeenAndRecord(ctx, "hash-0"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "hash-4999"), ShouldBeTrue)
			})
		})
	})
}

func TestHashIndexConcurrency(t *testing.T) {
	Convey("Given an index shared by goroutines", t, func() {
		d := dedupe.NewHashIndex()
		ctx := context.Background()

		Convey("When goroutines race to record the same hashes", func() {
			const workers, hashes = 8, 200
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < hashes; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("hash-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each hash is reported new exactly once", func() {
				So(fresh, ShouldEqual, hashes)
				So(d.Size(), ShouldEqual, hashes)
			})
		})
	})
}
