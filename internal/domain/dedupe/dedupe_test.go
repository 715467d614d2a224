package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/crease/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemory(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new cache", t, func() {
		c := dedupe.NewInMemory[string]()
		So(c.Size(), ShouldEqual, 0)

		Convey("When a result is recorded", func() {
			c.Record(ctx, "sub-1", "committed")

			Convey("Then lookups replay it", func() {
				v, ok := c.Lookup(ctx, "sub-1")
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, "committed")
				So(c.Size(), ShouldEqual, 1)
			})

			Convey("Then recording again keeps the first result", func() {
				c.Record(ctx, "sub-1", "pending")
				v, _ := c.Lookup(ctx, "sub-1")
				So(v, ShouldEqual, "committed")
				So(c.Size(), ShouldEqual, 1)
			})

			Convey("Then forgetting allows a retry", func() {
				c.Forget(ctx, "sub-1")
				_, ok := c.Lookup(ctx, "sub-1")
				So(ok, ShouldBeFalse)
				So(c.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the id is empty", func() {
			c.Record(ctx, "", "x")
			So(c.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded cache", t, func() {
		c := dedupe.NewInMemory[int](dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			c.Record(ctx, fmt.Sprintf("sub-%d", i), i)
		}

		Convey("Then the oldest id is evicted", func() {
			So(c.Size(), ShouldEqual, 3)
			_, ok := c.Lookup(ctx, "sub-1")
			So(ok, ShouldBeFalse)
			v, ok := c.Lookup(ctx, "sub-4")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 4)
		})
	})

	Convey("Given concurrent writers", t, func() {
		c := dedupe.NewInMemory[int](dedupe.WithMaxSize(0))
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c.Record(ctx, fmt.Sprintf("sub-%d", i%10), i)
			}(i)
		}
		wg.Wait()
		So(c.Size(), ShouldEqual, 10)
	})
}
