package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

// Source supplies projection inputs, normally the ledger.
type Source interface {
	ProjectionInput(ctx context.Context, inningsID string) (Input, error)
	MatchInnings(ctx context.Context, matchID string) (model.MatchConfig, []string, error)
}

// Projector caches innings projections. Entries are dropped by Invalidate,
// which the ledger calls on every commit, gap and completion.
type Projector struct {
	src Source
	log logger.Logger

	mu       sync.Mutex
	cache    map[string]InningsState
	versions map[string]uint64
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the projector logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Projector) {
		if l != nil {
			p.log = l
		}
	}
}

// NewProjector returns a projector reading from src.
func NewProjector(src Source, opts ...Option) *Projector {
	p := &Projector{
		src:      src,
		cache:    make(map[string]InningsState),
		versions: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("projection")
	}
	return p
}

// Invalidate drops the cached state of an innings.
func (p *Projector) Invalidate(inningsID string) {
	p.mu.Lock()
	delete(p.cache, inningsID)
	p.versions[inningsID]++
	p.mu.Unlock()
}

// Project returns the current state of an innings. The returned value is
// shared with the cache and must be treated as read-only.
func (p *Projector) Project(ctx context.Context, inningsID string) (InningsState, error) {
	p.mu.Lock()
	if st, ok := p.cache[inningsID]; ok {
		p.mu.Unlock()
		metrics.RecordProjectionCache(true)
		return st, nil
	}
	version := p.versions[inningsID]
	p.mu.Unlock()
	metrics.RecordProjectionCache(false)

	start := time.Now()
	in, err := p.src.ProjectionInput(ctx, inningsID)
	if err != nil {
		return InningsState{}, fmt.Errorf("load innings %s: %w", inningsID, err)
	}
	st := Project(in)
	metrics.RecordProjectionLatency(float64(time.Since(start).Microseconds()) / 1000)

	p.mu.Lock()
	// A commit that landed while we were reading makes st stale.
	if p.versions[inningsID] == version {
		p.cache[inningsID] = st
	}
	p.mu.Unlock()

	p.log.Debug(ctx, "innings projected",
		logger.InningsID(inningsID),
		logger.Int("balls", len(in.Balls)),
		logger.Int("runs", st.Runs))
	return st, nil
}

// Match projects every innings of a match in innings order.
func (p *Projector) Match(ctx context.Context, matchID string) (MatchState, error) {
	cfg, ids, err := p.src.MatchInnings(ctx, matchID)
	if err != nil {
		return MatchState{}, err
	}
	ms := MatchState{MatchID: matchID, Tier: cfg.Tier, Live: cfg.Live, Innings: make([]InningsState, 0, len(ids))}
	for _, id := range ids {
		st, err := p.Project(ctx, id)
		if err != nil {
			return MatchState{}, err
		}
		ms.Innings = append(ms.Innings, st)
	}
	return ms, nil
}
