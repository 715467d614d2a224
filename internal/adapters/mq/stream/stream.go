// Package stream appends ledger events to per-match Redis streams for
// downstream consumers such as performance aggregation.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/pkg/logger"
)

const (
	defaultPrefix = "crease.match"
	defaultMaxLen = 10000
)

// XAdder is the slice of the Redis client the publisher uses.
type XAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher is a dispatch sink writing to <prefix>.<match_id>.
type Publisher struct {
	client XAdder
	prefix string
	maxLen int64
	log    logger.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the stream key prefix.
func WithPrefix(p string) Option {
	return func(s *Publisher) {
		if p != "" {
			s.prefix = p
		}
	}
}

// WithMaxLen caps each stream, approximately.
func WithMaxLen(n int64) Option {
	return func(s *Publisher) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Publisher) {
		if l != nil {
			s.log = l
		}
	}
}

// NewPublisher creates a stream publisher.
func NewPublisher(client XAdder, opts ...Option) *Publisher {
	p := &Publisher{client: client, prefix: defaultPrefix, maxLen: defaultMaxLen}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("stream")
	}
	return p
}

// Name implements worker.Sink.
func (p *Publisher) Name() string { return "redis_stream" }

// Key returns the stream key of a match.
func (p *Publisher) Key(matchID string) string {
	return p.prefix + "." + matchID
}

// Handle appends committed balls, gaps, innings completions and match ends.
// Other events are ignored.
func (p *Publisher) Handle(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.BallCommitted, events.BallAbandoned, events.InningsComplete, events.MatchEnded:
	default:
		return nil
	}
	data, err := json.Marshal(e.Envelope())
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", e.Type, err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Key(e.MatchID),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_type":      string(e.Type),
			"match_id":        e.MatchID,
			"innings_id":      e.InningsID,
			"sequence_number": strconv.FormatInt(e.Sequence, 10),
			"data":            string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.Key(e.MatchID), err)
	}
	p.log.Debug(ctx, "event streamed",
		logger.MatchID(e.MatchID),
		logger.String("event_type", string(e.Type)),
		logger.String("stream_id", id))
	return nil
}
