package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/crease/internal/adapters/mq/worker"
	"github.com/okian/crease/internal/domain/events"
	logging "github.com/okian/crease/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

type mockQueue struct {
	ch chan worker.Event
}

func (m *mockQueue) Dequeue(context.Context) <-chan worker.Event { return m.ch }

type recordingSink struct {
	name string
	fail error
	mu   sync.Mutex
	got  map[string][]int64
}

func newSink(name string) *recordingSink {
	return &recordingSink{name: name, got: make(map[string][]int64)}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, e worker.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got[e.MatchID] = append(s.got[e.MatchID], e.Sequence)
	return s.fail
}

func (s *recordingSink) seen(matchID string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.got[matchID]...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker with a failing and a healthy sink", t, func() {
		q := &mockQueue{ch: make(chan worker.Event, 4)}
		bad := newSink("bad")
		bad.fail = errors.New("boom")
		good := newSink("good")
		w := worker.NewInMemoryWorker(q, []worker.Sink{bad, good}, worker.WithName("test"))

		convey.Convey("When events are processed and the queue closes", func() {
			q.ch <- worker.Event{Type: events.BallCommitted, MatchID: "m1", Sequence: 1}
			q.ch <- worker.Event{Type: events.BallCommitted, MatchID: "m1", Sequence: 2}
			close(q.ch)
			w.Run(context.Background())

			convey.Convey("Then every sink saw every event", func() {
				convey.So(bad.seen("m1"), convey.ShouldResemble, []int64{1, 2})
				convey.So(good.seen("m1"), convey.ShouldResemble, []int64{1, 2})
			})

			convey.Convey("Then shutdown returns immediately", func() {
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When shutdown times out", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			go w.Run(context.Background())
			err := w.Shutdown(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			close(q.ch)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a sharded pool", t, func() {
		sink := newSink("rec")
		p := worker.NewPool(4, 256, sink)
		ctx := context.Background()
		p.Start(ctx)

		convey.Convey("When several matches publish concurrently", func() {
			var wg sync.WaitGroup
			for m := 0; m < 6; m++ {
				wg.Add(1)
				go func(m int) {
					defer wg.Done()
					for seq := int64(1); seq <= 20; seq++ {
						p.Publish(ctx, worker.Event{Type: events.BallCommitted, MatchID: fmt.Sprintf("m%d", m), Sequence: seq})
					}
				}(m)
			}
			wg.Wait()
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then each match is delivered in publish order", func() {
				for m := 0; m < 6; m++ {
					got := sink.seen(fmt.Sprintf("m%d", m))
					convey.So(len(got), convey.ShouldEqual, 20)
					for i, seq := range got {
						convey.So(seq, convey.ShouldEqual, int64(i+1))
					}
				}
			})
		})
	})
}

func TestPoolBackpressure(t *testing.T) {
	convey.Convey("Given a pool whose only shard is full", t, func() {
		sink := newSink("rec")
		p := worker.NewPool(1, 1, sink)
		p.SetPublishWait(2 * time.Second)
		ctx := context.Background()
		p.Publish(ctx, worker.Event{Type: events.BallCommitted, MatchID: "m1", Sequence: 1})

		convey.Convey("When a dispute reminder is published", func() {
			p.Publish(ctx, worker.Event{Type: events.DisputeReminder, MatchID: "m1", Sequence: 99})
			p.Start(ctx)
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then it is dropped", func() {
				convey.So(sink.seen("m1"), convey.ShouldResemble, []int64{1})
			})
		})

		convey.Convey("When a committed ball is published while workers start late", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			time.AfterFunc(50*time.Millisecond, func() { p.Start(ctx) })
			p.Publish(cctx, worker.Event{Type: events.BallCommitted, MatchID: "m1", Sequence: 2})
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then it waits for room instead of being dropped", func() {
				convey.So(sink.seen("m1"), convey.ShouldResemble, []int64{1, 2})
			})
		})
	})
}
