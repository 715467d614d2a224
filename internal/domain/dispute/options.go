package dispute

import (
	"time"

	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/pkg/logger"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithPublisher sets where dispute events go.
func WithPublisher(p events.Publisher) Option {
	return func(r *Resolver) {
		if p != nil {
			r.pub = p
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides id generation for recorded votes.
func WithIDGenerator(f func() string) Option {
	return func(r *Resolver) {
		if f != nil {
			r.newID = f
		}
	}
}

// WithAlertInterval sets how often pending disputes are re-announced.
func WithAlertInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}
