package dedupe

type options struct {
	maxSize int
}

// Option configures an in-memory cache.
type Option func(*options)

// WithMaxSize bounds the number of remembered ids. Zero or less is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		o.maxSize = maxSize
	}
}
