// Package worker drains event queues into sinks such as the broadcast hub,
// the performance stream and the officials' alert channel.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/okian/crease/internal/adapters/mq/queue"
	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

const (
	defaultShards       = 8
	poolShutdownTimeout = 30 * time.Second
	defaultPublishWait  = 5 * time.Second
)

// Event is what workers read off the queue.
type Event = events.Event

// Sink receives dispatched events. A failing sink does not stop the others.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events from one queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown waits for the worker to drain.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker hands each event to every sink in order.
type InMemoryWorker struct {
	queue Queue
	sinks []Sink
	name  string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, sinks []Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:  q,
		sinks:  sinks,
		name:   "worker",
		done:   make(chan struct{}),
		logger: logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	for e := range w.queue.Dequeue(ctx) {
		w.process(ctx, e)
	}
}

// Shutdown waits for Run to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, e Event) { //nolint:gocritic // hugeParam: events travel by value
	for _, s := range w.sinks {
		err := s.Handle(ctx, e)
		metrics.RecordSinkPublish(s.Name(), err == nil)
		if err != nil {
			metrics.RecordWorkerError(s.Name())
			w.logger.Error(ctx, "sink failed",
				logger.String("sink", s.Name()),
				logger.String("event_type", string(e.Type)),
				logger.MatchID(e.MatchID),
				logger.Int64("sequence", e.Sequence),
				logger.Error(err))
		}
	}
}

// Pool shards events by match over one queue and one worker per shard, so
// events of a match are delivered in the order they were published.
type Pool struct {
	queues  []*queue.InMemoryQueue
	workers []*InMemoryWorker
	logger  logger.Logger
	wait    time.Duration
}

// NewPool creates a pool of shardCount workers, each with a queue of
// capacity events.
func NewPool(shardCount, capacity int, sinks ...Sink) *Pool {
	if shardCount < 1 {
		shardCount = defaultShards
	}
	p := &Pool{
		queues:  make([]*queue.InMemoryQueue, shardCount),
		workers: make([]*InMemoryWorker, shardCount),
		logger:  logger.Get().Named("worker-pool"),
		wait:    defaultPublishWait,
	}
	for i := range shardCount {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(capacity))
		p.workers[i] = NewInMemoryWorker(p.queues[i], sinks, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(shardCount)
	return p
}

// Start runs every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// SetPublishWait bounds how long Publish waits on a full shard for ledger
// events. Call it before Start.
func (p *Pool) SetPublishWait(d time.Duration) {
	if d > 0 {
		p.wait = d
	}
}

// Publish enqueues an event on the shard of its match. Ledger events wait
// for room on a full shard, bounded by the publish wait and independent of
// the caller's cancellation; other events are dropped when the shard is full.
func (p *Pool) Publish(ctx context.Context, e Event) {
	q := p.queues[p.shard(e.MatchID)]
	if e.Type.Durable() {
		if !q.EnqueueWait(context.WithoutCancel(ctx), e, p.wait) {
			p.logger.Error(ctx, "ledger event dropped",
				logger.MatchID(e.MatchID),
				logger.String("event_type", string(e.Type)),
				logger.Int64("sequence", e.Sequence),
				logger.Duration("waited", p.wait))
		}
		return
	}
	if !q.Enqueue(ctx, e) {
		p.logger.Warn(ctx, "event dropped",
			logger.MatchID(e.MatchID),
			logger.String("event_type", string(e.Type)),
			logger.Int64("sequence", e.Sequence))
	}
}

// Len returns the number of queued events across shards.
func (p *Pool) Len(ctx context.Context) int {
	n := 0
	for _, q := range p.queues {
		n += q.Len(ctx)
	}
	return n
}

func (p *Pool) shard(matchID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(matchID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// Shutdown closes the queues and waits for the workers to drain them.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, q := range p.queues {
		if err := q.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
