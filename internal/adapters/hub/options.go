package hub

import (
	"context"
	"time"

	"github.com/okian/crease/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithLiveCheck keeps empty rooms open while live reports true for the match.
func WithLiveCheck(live func(ctx context.Context, matchID string) bool) Option {
	return func(h *Hub) {
		if live != nil {
			h.live = live
		}
	}
}

// WithClock sets the clock stamping snapshots.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}
