package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/crease/internal/domain/model"
)

// Store persists ledger records. Implementations must reject a second ball or
// gap for the same slot or sequence in an innings with ErrConflict, and return
// ErrNotFound for unknown matches and innings. No method updates or deletes a
// ball, wicket or gap.
type Store interface {
	SaveMatch(ctx context.Context, cfg model.MatchConfig) error
	Match(ctx context.Context, matchID string) (model.MatchConfig, error)

	SaveInnings(ctx context.Context, inn model.Innings) error
	Innings(ctx context.Context, inningsID string) (model.Innings, error)
	MatchInnings(ctx context.Context, matchID string) ([]model.Innings, error)

	AppendBall(ctx context.Context, b model.Ball, w *model.Wicket) error
	AppendGap(ctx context.Context, g model.Gap) error

	Balls(ctx context.Context, inningsID string) ([]model.Ball, error)
	Wickets(ctx context.Context, inningsID string) ([]model.Wicket, error)
	Gaps(ctx context.Context, inningsID string) ([]model.Gap, error)
}

// MemoryStore is a Store kept in process memory. Records are held in arenas
// keyed by id; per-innings indexes keep sequence order.
type MemoryStore struct {
	mu sync.RWMutex

	matches map[string]model.MatchConfig
	innings map[string]model.Innings
	balls   map[string]model.Ball
	wickets map[string]model.Wicket
	gaps    map[string]model.Gap

	ballIdx map[string][]string // innings -> ball ids in sequence order
	gapIdx  map[string][]string
	slots   map[string]struct{} // slot keys taken by a ball or gap
	seqs    map[string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]model.MatchConfig),
		innings: make(map[string]model.Innings),
		balls:   make(map[string]model.Ball),
		wickets: make(map[string]model.Wicket),
		gaps:    make(map[string]model.Gap),
		ballIdx: make(map[string][]string),
		gapIdx:  make(map[string][]string),
		slots:   make(map[string]struct{}),
		seqs:    make(map[string]struct{}),
	}
}

func seqKey(inningsID string, seq int64) string {
	return fmt.Sprintf("%s#%d", inningsID, seq)
}

// SaveMatch upserts a match config.
func (s *MemoryStore) SaveMatch(_ context.Context, cfg model.MatchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[cfg.MatchID] = cfg
	return nil
}

// Match returns a match config.
func (s *MemoryStore) Match(_ context.Context, matchID string) (model.MatchConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.matches[matchID]
	if !ok {
		return model.MatchConfig{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return cfg, nil
}

// SaveInnings upserts innings metadata.
func (s *MemoryStore) SaveInnings(_ context.Context, inn model.Innings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.innings {
		if other.MatchID == inn.MatchID && other.Number == inn.Number && other.ID != inn.ID {
			return fmt.Errorf("innings %d of match %s: %w", inn.Number, inn.MatchID, ErrConflict)
		}
	}
	s.innings[inn.ID] = inn
	return nil
}

// Innings returns innings metadata.
func (s *MemoryStore) Innings(_ context.Context, inningsID string) (model.Innings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inn, ok := s.innings[inningsID]
	if !ok {
		return model.Innings{}, fmt.Errorf("innings %s: %w", inningsID, ErrNotFound)
	}
	return inn, nil
}

// MatchInnings returns the innings of a match ordered by number.
func (s *MemoryStore) MatchInnings(_ context.Context, matchID string) ([]model.Innings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Innings
	for _, inn := range s.innings {
		if inn.MatchID == matchID {
			out = append(out, inn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) claim(inningsID string, slot model.Slot, seq int64) error {
	sk, qk := slot.Key(), seqKey(inningsID, seq)
	if _, taken := s.slots[sk]; taken {
		return fmt.Errorf("slot %s: %w", sk, ErrConflict)
	}
	if _, taken := s.seqs[qk]; taken {
		return fmt.Errorf("sequence %s: %w", qk, ErrConflict)
	}
	s.slots[sk] = struct{}{}
	s.seqs[qk] = struct{}{}
	return nil
}

// AppendBall stores a ball and its wicket atomically.
func (s *MemoryStore) AppendBall(_ context.Context, b model.Ball, w *model.Wicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.innings[b.InningsID]; !ok {
		return fmt.Errorf("innings %s: %w", b.InningsID, ErrNotFound)
	}
	if err := s.claim(b.InningsID, b.Slot(), b.Sequence); err != nil {
		return err
	}
	s.balls[b.ID] = b
	s.ballIdx[b.InningsID] = append(s.ballIdx[b.InningsID], b.ID)
	if w != nil {
		wk := *w
		wk.FielderIDs = append([]string(nil), w.FielderIDs...)
		s.wickets[wk.ID] = wk
	}
	return nil
}

// AppendGap stores an abandoned slot.
func (s *MemoryStore) AppendGap(_ context.Context, g model.Gap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.innings[g.InningsID]; !ok {
		return fmt.Errorf("innings %s: %w", g.InningsID, ErrNotFound)
	}
	if err := s.claim(g.InningsID, g.Slot(), g.Sequence); err != nil {
		return err
	}
	s.gaps[g.ID] = g
	s.gapIdx[g.InningsID] = append(s.gapIdx[g.InningsID], g.ID)
	return nil
}

// Balls returns the balls of an innings in sequence order.
func (s *MemoryStore) Balls(_ context.Context, inningsID string) ([]model.Ball, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.ballIdx[inningsID]
	out := make([]model.Ball, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.balls[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Wickets returns the wickets of an innings in wicket order.
func (s *MemoryStore) Wickets(_ context.Context, inningsID string) ([]model.Wicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Wicket
	for _, id := range s.ballIdx[inningsID] {
		b := s.balls[id]
		if w, ok := s.wickets[b.WicketID]; ok && b.IsWicket {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WicketNumber < out[j].WicketNumber })
	return out, nil
}

// Gaps returns the gaps of an innings in sequence order.
func (s *MemoryStore) Gaps(_ context.Context, inningsID string) ([]model.Gap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.gapIdx[inningsID]
	out := make([]model.Gap, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.gaps[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}
