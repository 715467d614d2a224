package consensus

import (
	"time"

	"github.com/okian/crease/internal/domain/dedupe"
	"github.com/okian/crease/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithDisputes sets where disputes are raised.
func WithDisputes(d Disputes) Option {
	return func(e *Engine) {
		if d != nil {
			e.disputes = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the time source used for windows and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides claim and dispute id generation.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newID = f
		}
	}
}

// WithMatchingWindow sets the default window used when a match does not
// configure its own.
func WithMatchingWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithSweepInterval sets how often Run checks for expired windows.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweepEvery = d
		}
	}
}

// WithCommitRetries bounds how often a ledger conflict is retried.
func WithCommitRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// WithDedupe sets the cache used to replay repeated submission ids.
func WithDedupe(c dedupe.Cache[Result]) Option {
	return func(e *Engine) {
		if c != nil {
			e.seen = c
		}
	}
}
