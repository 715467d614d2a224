package repository

import (
	"time"

	"github.com/okian/crease/pkg/logger"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpen = n
		}
	}
}

// WithConnMaxLifetime recycles pooled connections.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxLifetime = d
		}
	}
}
