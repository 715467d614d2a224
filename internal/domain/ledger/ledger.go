// Package ledger is the append-only source of truth for committed balls,
// wickets and abandoned slots. Nothing in this package updates or deletes a
// committed record.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/internal/domain/integrity"
	"github.com/okian/crease/internal/domain/keylock"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/projection"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
	"github.com/okian/crease/pkg/tracing"
)

// CommitHook runs synchronously after every ledger change of an innings.
type CommitHook func(inningsID string)

// CloseHook runs synchronously once an innings can take no more balls,
// either because it completed or because its match ended. Hooks must not
// call back into the ledger.
type CloseHook func(ctx context.Context, inn model.Innings, reason string)

// CommitRequest asks the ledger to append a ball for the slot named by Claim.
type CommitRequest struct {
	InningsID     string
	Claim         model.BallClaim
	Provenance    model.Provenance
	Matching      int
	LowConfidence bool
}

// AbandonRequest asks the ledger to record a gap for a slot.
type AbandonRequest struct {
	InningsID string
	Slot      model.Slot
	DisputeID string
	Reason    string
}

// Log is the full record of an innings.
type Log struct {
	Innings model.Innings  `json:"innings"`
	Balls   []model.Ball   `json:"balls"`
	Wickets []model.Wicket `json:"wickets"`
	Overs   []model.Over   `json:"overs"`
	Gaps    []model.Gap    `json:"gaps"`
}

// head is the in-memory tip of an innings chain, rebuilt from the store.
type head struct {
	cfg      model.MatchConfig
	innings  model.Innings
	acc      *projection.Accumulator
	lastHash string
	seq      int64
}

// Ledger appends to and replays innings logs.
type Ledger struct {
	store Store
	pub   events.Publisher
	log   logger.Logger
	now   func() time.Time
	newID func() string

	locks *keylock.Map

	mu    sync.RWMutex
	heads map[string]*head
	hooks []CommitHook
	close []CloseHook
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore sets the backing store. The default is a MemoryStore.
func WithStore(s Store) Option {
	return func(l *Ledger) {
		if s != nil {
			l.store = s
		}
	}
}

// WithPublisher sets where ledger events go.
func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) {
		if p != nil {
			l.pub = p
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.log = lg
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(f func() string) Option {
	return func(l *Ledger) {
		if f != nil {
			l.newID = f
		}
	}
}

// New creates a ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		store: NewMemoryStore(),
		pub:   events.Nop,
		now:   time.Now,
		newID: uuid.NewString,
		locks: keylock.New(),
		heads: make(map[string]*head),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("ledger")
	}
	return l
}

// OnCommit registers a hook called after every commit, gap and completion.
func (l *Ledger) OnCommit(h CommitHook) {
	l.mu.Lock()
	l.hooks = append(l.hooks, h)
	l.mu.Unlock()
}

// OnClose registers a hook called when an innings closes.
func (l *Ledger) OnClose(h CloseHook) {
	l.mu.Lock()
	l.close = append(l.close, h)
	l.mu.Unlock()
}

func (l *Ledger) runCloseHooks(ctx context.Context, inn model.Innings, reason string) {
	l.mu.RLock()
	hooks := l.close
	l.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, inn, reason)
	}
}

func (l *Ledger) runHooks(inningsID string) {
	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()
	for _, h := range hooks {
		h(inningsID)
	}
}

// RegisterMatch records a match configuration and marks it live. The tier is
// fixed once registered; registering again with the same tier is a no-op.
func (l *Ledger) RegisterMatch(ctx context.Context, cfg model.MatchConfig) (model.MatchConfig, error) {
	if cfg.MatchID == "" {
		return model.MatchConfig{}, fmt.Errorf("%w: match_id is required", ErrValidation)
	}
	if !cfg.Tier.Valid() {
		return model.MatchConfig{}, fmt.Errorf("%w: unknown tier %q", ErrValidation, cfg.Tier)
	}
	if cfg.MaxOvers < 0 {
		return model.MatchConfig{}, fmt.Errorf("%w: max_overs must not be negative", ErrValidation)
	}

	unlock := l.locks.Lock("match:" + cfg.MatchID)
	defer unlock()

	existing, err := l.store.Match(ctx, cfg.MatchID)
	switch {
	case err == nil:
		if existing.Tier != cfg.Tier {
			return existing, fmt.Errorf("%w: tier of match %s is %s", ErrConflict, cfg.MatchID, existing.Tier)
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return model.MatchConfig{}, err
	}

	cfg = cfg.WithDefaults()
	cfg.Live = true
	cfg.RegisteredAt = l.now().UTC()
	if err := l.store.SaveMatch(ctx, cfg); err != nil {
		return model.MatchConfig{}, fmt.Errorf("save match: %w", err)
	}
	l.log.Info(ctx, "match registered",
		logger.MatchID(cfg.MatchID),
		logger.String("tier", string(cfg.Tier)),
		logger.Int("balls_per_over", cfg.BallsPerOver))
	return cfg, nil
}

// Match returns a registered match configuration.
func (l *Ledger) Match(ctx context.Context, matchID string) (model.MatchConfig, error) {
	cfg, err := l.store.Match(ctx, matchID)
	if errors.Is(err, ErrNotFound) {
		return cfg, fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	return cfg, err
}

// EndMatch marks a match as no longer live. Further commits are rejected.
func (l *Ledger) EndMatch(ctx context.Context, matchID string) (model.MatchConfig, error) {
	unlock := l.locks.Lock("match:" + matchID)
	defer unlock()

	cfg, err := l.Match(ctx, matchID)
	if err != nil {
		return cfg, err
	}
	if !cfg.Live {
		return cfg, nil
	}
	cfg.Live = false
	if err := l.store.SaveMatch(ctx, cfg); err != nil {
		return cfg, fmt.Errorf("save match: %w", err)
	}
	innings, err := l.store.MatchInnings(ctx, matchID)
	if err != nil {
		return cfg, err
	}

	// Heads are read under their innings lock, so flip each one under it.
	l.mu.RLock()
	var ids []string
	for id, h := range l.heads {
		if h.cfg.MatchID == matchID {
			ids = append(ids, id)
		}
	}
	l.mu.RUnlock()
	for _, id := range ids {
		release := l.locks.Lock(id)
		l.mu.RLock()
		h, ok := l.heads[id]
		l.mu.RUnlock()
		if ok {
			h.cfg.Live = false
		}
		release()
		l.runHooks(id)
	}
	for _, inn := range innings {
		if !inn.IsCompleted {
			l.runCloseHooks(ctx, inn, "match ended")
		}
	}

	l.pub.Publish(ctx, events.Event{Type: events.MatchEnded, MatchID: matchID, Payload: cfg, At: l.now().UTC()})
	l.log.Info(ctx, "match ended", logger.MatchID(matchID))
	return cfg, nil
}

// StartInnings opens the next innings of a live match. Only one innings of a
// match may be in progress at a time.
func (l *Ledger) StartInnings(ctx context.Context, inn model.Innings) (model.Innings, error) {
	if inn.BattingTeamID == "" || inn.BowlingTeamID == "" {
		return model.Innings{}, fmt.Errorf("%w: batting and bowling teams are required", ErrValidation)
	}
	if inn.BattingTeamID == inn.BowlingTeamID {
		return model.Innings{}, fmt.Errorf("%w: a team cannot bowl to itself", ErrValidation)
	}
	if inn.Target < 0 {
		return model.Innings{}, fmt.Errorf("%w: target must not be negative", ErrValidation)
	}

	unlock := l.locks.Lock("match:" + inn.MatchID)
	defer unlock()

	cfg, err := l.Match(ctx, inn.MatchID)
	if err != nil {
		return model.Innings{}, err
	}
	if !cfg.Live {
		return model.Innings{}, fmt.Errorf("%w: %s", ErrMatchEnded, inn.MatchID)
	}
	existing, err := l.store.MatchInnings(ctx, inn.MatchID)
	if err != nil {
		return model.Innings{}, err
	}
	for _, e := range existing {
		if !e.IsCompleted {
			return model.Innings{}, fmt.Errorf("%w: innings %s", ErrInningsInProgress, e.ID)
		}
	}

	if inn.ID == "" {
		inn.ID = l.newID()
	}
	if inn.Number == 0 {
		inn.Number = len(existing) + 1
	}
	inn.IsCompleted = false
	inn.CompletionReason = model.CompletionNone
	inn.CompletedAt = nil
	inn.StartedAt = l.now().UTC()
	if err := l.store.SaveInnings(ctx, inn); err != nil {
		return model.Innings{}, fmt.Errorf("save innings: %w", err)
	}

	l.mu.Lock()
	l.heads[inn.ID] = &head{
		cfg:      cfg,
		innings:  inn,
		acc:      projection.NewAccumulator(cfg, inn),
		lastHash: integrity.Genesis,
	}
	l.mu.Unlock()

	l.pub.Publish(ctx, events.Event{Type: events.InningsStarted, MatchID: inn.MatchID, InningsID: inn.ID, Payload: inn, At: inn.StartedAt})
	l.log.Info(ctx, "innings started",
		logger.MatchID(inn.MatchID),
		logger.InningsID(inn.ID),
		logger.Int("number", inn.Number))
	return inn, nil
}

// CompleteInnings ends an innings for a lifecycle reason such as a declaration.
func (l *Ledger) CompleteInnings(ctx context.Context, inningsID string, reason model.CompletionReason) (model.Innings, error) {
	if reason == model.CompletionNone {
		reason = model.CompletionDeclared
	}
	unlock := l.locks.Lock(inningsID)
	defer unlock()

	h, err := l.head(ctx, inningsID)
	if err != nil {
		return model.Innings{}, err
	}
	if h.innings.IsCompleted {
		return h.innings, fmt.Errorf("%w: %s", ErrInningsComplete, inningsID)
	}
	if err := l.complete(ctx, h, reason); err != nil {
		return model.Innings{}, err
	}
	l.runHooks(inningsID)
	return h.innings, nil
}

// complete persists completion. Callers hold the innings lock.
func (l *Ledger) complete(ctx context.Context, h *head, reason model.CompletionReason) error {
	inn := h.innings
	at := l.now().UTC()
	inn.IsCompleted = true
	inn.CompletionReason = reason
	inn.CompletedAt = &at
	inn.StrikerID, inn.NonStrikerID, inn.BowlerID = h.acc.Crease()
	if err := l.store.SaveInnings(ctx, inn); err != nil {
		return fmt.Errorf("save innings: %w", err)
	}
	h.innings = inn
	h.acc.SetInnings(inn)

	l.pub.Publish(ctx, events.Event{
		Type: events.InningsComplete, MatchID: inn.MatchID, InningsID: inn.ID,
		Sequence: h.seq, Payload: h.acc.State(), At: at,
	})
	l.log.Info(ctx, "innings complete",
		logger.InningsID(inn.ID),
		logger.String("reason", string(reason)),
		logger.Int("runs", h.acc.Runs()),
		logger.Int("wickets", h.acc.Wickets()))
	l.runCloseHooks(ctx, inn, "innings complete: "+string(reason))
	return nil
}

// Innings returns innings metadata with the current crease filled in.
func (l *Ledger) Innings(ctx context.Context, inningsID string) (model.Innings, error) {
	unlock := l.locks.Lock(inningsID)
	defer unlock()
	h, err := l.head(ctx, inningsID)
	if err != nil {
		return model.Innings{}, err
	}
	inn := h.innings
	inn.StrikerID, inn.NonStrikerID, inn.BowlerID = h.acc.Crease()
	return inn, nil
}

// head returns the cached tip, loading it from the store on first use.
// Callers hold the innings lock.
func (l *Ledger) head(ctx context.Context, inningsID string) (*head, error) {
	l.mu.RLock()
	h, ok := l.heads[inningsID]
	l.mu.RUnlock()
	if ok {
		return h, nil
	}
	h, err := l.load(ctx, inningsID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.heads[inningsID] = h
	l.mu.Unlock()
	return h, nil
}

func (l *Ledger) load(ctx context.Context, inningsID string) (*head, error) {
	in, err := l.ProjectionInput(ctx, inningsID)
	if err != nil {
		return nil, err
	}
	h := &head{
		cfg:      in.Config,
		innings:  in.Innings,
		acc:      projection.NewAccumulator(in.Config, in.Innings),
		lastHash: integrity.Genesis,
	}
	gi := 0
	for _, b := range in.Balls {
		for gi < len(in.Gaps) && in.Gaps[gi].Sequence < b.Sequence {
			h.acc.ApplyGap(in.Gaps[gi])
			gi++
		}
		var w *model.Wicket
		if wk, ok := in.Wickets[b.WicketID]; ok && b.IsWicket {
			w = &wk
		}
		h.acc.Apply(b, w)
		h.lastHash = b.EventHash
	}
	for ; gi < len(in.Gaps); gi++ {
		h.acc.ApplyGap(in.Gaps[gi])
	}
	h.seq = h.acc.LastSequence()
	return h, nil
}

// resync drops the cached tip so the next access reloads from the store.
func (l *Ledger) resync(inningsID string) {
	l.mu.Lock()
	delete(l.heads, inningsID)
	l.mu.Unlock()
}

func (l *Ledger) writable(h *head) error {
	if !h.cfg.Live {
		return fmt.Errorf("%w: %s", ErrMatchEnded, h.cfg.MatchID)
	}
	if h.innings.IsCompleted {
		return fmt.Errorf("%w: %s", ErrInningsComplete, h.innings.ID)
	}
	return nil
}

// Commit appends a ball for the next expected slot of an innings.
func (l *Ledger) Commit(ctx context.Context, req CommitRequest) (ball model.Ball, err error) {
	ctx, span := tracing.Start(ctx, "ledger", "commit", tracing.Innings(req.InningsID))
	defer func() { tracing.End(span, err) }()
	start := time.Now()

	claim := req.Claim.Normalize()
	if err := claim.Validate(); err != nil {
		return model.Ball{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	unlock := l.locks.Lock(req.InningsID)
	defer unlock()

	h, err := l.head(ctx, req.InningsID)
	if err != nil {
		return model.Ball{}, err
	}
	if err := l.writable(h); err != nil {
		return model.Ball{}, err
	}
	over, ballNo := h.acc.Next()
	if claim.OverNumber != over || claim.BallNumber != ballNo {
		return model.Ball{}, fmt.Errorf("%w: expected %d.%d, got %d.%d",
			ErrSequence, over, ballNo, claim.OverNumber, claim.BallNumber)
	}

	slot := claim.Slot(req.InningsID)
	ball = model.Ball{
		ID:                  l.newID(),
		MatchID:             h.cfg.MatchID,
		InningsID:           req.InningsID,
		OverID:              model.OverID(req.InningsID, over),
		OverNumber:          over,
		BallNumber:          ballNo,
		Label:               projection.Label(over, h.acc.OverLegal(over)),
		Sequence:            h.seq + 1,
		BowlerID:            claim.BowlerID,
		StrikerID:           claim.StrikerID,
		NonStrikerID:        claim.NonStrikerID,
		RunsScored:          claim.RunsScored,
		ExtraType:           claim.ExtraType,
		ExtraRuns:           claim.ExtraRuns,
		IsLegal:             claim.ExtraType.IsLegal(),
		IsWicket:            claim.IsWicket,
		IsBoundary:          claim.IsBoundary,
		Provenance:          req.Provenance,
		MatchingSubmissions: req.Matching,
		LowConfidence:       req.LowConfidence,
		PrevHash:            h.lastHash,
		EventHash:           integrity.Hash(h.cfg.MatchID, req.InningsID, slot, claim, h.lastHash),
		CommittedAt:         l.now().UTC(),
	}

	var wicket *model.Wicket
	if claim.IsWicket {
		d := claim.Dismissal
		wicket = &model.Wicket{
			ID:               l.newID(),
			BallID:           ball.ID,
			InningsID:        req.InningsID,
			DismissalType:    d.Type,
			PlayerOutID:      d.PlayerOutID,
			FielderIDs:       d.FielderIDs,
			WicketNumber:     h.acc.Wickets() + 1,
			ScoreAtDismissal: h.acc.Runs() + ball.TotalRuns(),
			PartnershipRuns:  h.acc.PartnershipRuns() + ball.TotalRuns(),
		}
		if d.Type.CreditedToBowler() {
			wicket.BowlerID = claim.BowlerID
		}
		ball.WicketID = wicket.ID
	}

	if err := l.store.AppendBall(ctx, ball, wicket); err != nil {
		if errors.Is(err, ErrConflict) {
			return l.reconcile(ctx, req.InningsID, ball)
		}
		return model.Ball{}, fmt.Errorf("append ball: %w", err)
	}

	h.acc.Apply(ball, wicket)
	h.lastHash = ball.EventHash
	h.seq = ball.Sequence

	metrics.RecordBallCommitted(string(ball.Provenance))
	metrics.RecordCommitLatency(float64(time.Since(start).Microseconds()) / 1000)
	l.log.Debug(ctx, "ball committed",
		logger.InningsID(ball.InningsID),
		logger.Slot(over, ballNo),
		logger.Int64("sequence", ball.Sequence),
		logger.String("provenance", string(ball.Provenance)))

	l.publishBall(ctx, h, ball, wicket)

	st := projection.InningsState{
		Runs: h.acc.Runs(), Wickets: h.acc.Wickets(), LegalBalls: h.acc.LegalBalls(), Target: h.innings.Target,
	}
	if reason := projection.Completion(h.cfg, st); reason != model.CompletionNone {
		if err := l.complete(ctx, h, reason); err != nil {
			l.log.Error(ctx, "failed to complete innings", logger.InningsID(req.InningsID), logger.Error(err))
		}
	}
	l.runHooks(req.InningsID)
	return ball, nil
}

// reconcile handles a store conflict: another writer took the slot. The tip is
// reloaded, and when the stored ball carries our hash the commit already
// happened and is returned as is.
func (l *Ledger) reconcile(ctx context.Context, inningsID string, attempted model.Ball) (model.Ball, error) {
	metrics.RecordLedgerConflict()
	l.resync(inningsID)
	l.runHooks(inningsID)

	balls, err := l.store.Balls(ctx, inningsID)
	if err != nil {
		return model.Ball{}, fmt.Errorf("%w: resync: %w", ErrConflict, err)
	}
	for _, b := range balls {
		if b.OverNumber == attempted.OverNumber && b.BallNumber == attempted.BallNumber && b.EventHash == attempted.EventHash {
			l.log.Info(ctx, "commit already applied by another writer",
				logger.InningsID(inningsID), logger.Slot(b.OverNumber, b.BallNumber))
			return b, nil
		}
	}
	l.log.Warn(ctx, "commit lost slot race",
		logger.InningsID(inningsID), logger.Slot(attempted.OverNumber, attempted.BallNumber))
	return model.Ball{}, fmt.Errorf("%w: slot %d.%d", ErrConflict, attempted.OverNumber, attempted.BallNumber)
}

func (l *Ledger) publishBall(ctx context.Context, h *head, b model.Ball, w *model.Wicket) {
	at := b.CommittedAt
	l.pub.Publish(ctx, events.Event{
		Type: events.BallCommitted, MatchID: b.MatchID, InningsID: b.InningsID,
		Sequence: b.Sequence, Payload: events.BallPayload{Ball: b, Wicket: w}, At: at,
	})
	if w != nil {
		l.pub.Publish(ctx, events.Event{
			Type: events.WicketFallen, MatchID: b.MatchID, InningsID: b.InningsID,
			Sequence: b.Sequence, Payload: *w, At: at,
		})
	}
	if b.IsLegal && h.acc.OverLegal(b.OverNumber) == h.cfg.BallsPerOver {
		if o, ok := h.acc.Over(b.OverNumber); ok {
			l.pub.Publish(ctx, events.Event{
				Type: events.OverComplete, MatchID: b.MatchID, InningsID: b.InningsID,
				Sequence: b.Sequence, Payload: o, At: at,
			})
		}
	}
}

// Abandon records a visible gap for the next expected slot.
func (l *Ledger) Abandon(ctx context.Context, req AbandonRequest) (model.Gap, error) {
	unlock := l.locks.Lock(req.InningsID)
	defer unlock()

	h, err := l.head(ctx, req.InningsID)
	if err != nil {
		return model.Gap{}, err
	}
	if err := l.writable(h); err != nil {
		return model.Gap{}, err
	}
	over, ballNo := h.acc.Next()
	if req.Slot.OverNumber != over || req.Slot.BallNumber != ballNo {
		return model.Gap{}, fmt.Errorf("%w: expected %d.%d, got %d.%d",
			ErrSequence, over, ballNo, req.Slot.OverNumber, req.Slot.BallNumber)
	}

	g := model.Gap{
		ID:         l.newID(),
		MatchID:    h.cfg.MatchID,
		InningsID:  req.InningsID,
		OverID:     model.OverID(req.InningsID, over),
		OverNumber: over,
		BallNumber: ballNo,
		Sequence:   h.seq + 1,
		DisputeID:  req.DisputeID,
		Reason:     req.Reason,
		RecordedAt: l.now().UTC(),
	}
	if err := l.store.AppendGap(ctx, g); err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.RecordLedgerConflict()
			l.resync(req.InningsID)
			l.runHooks(req.InningsID)
		}
		return model.Gap{}, fmt.Errorf("append gap: %w", err)
	}
	h.acc.ApplyGap(g)
	h.seq = g.Sequence

	metrics.RecordBallAbandoned()
	l.log.Warn(ctx, "ball slot abandoned",
		logger.InningsID(req.InningsID),
		logger.Slot(over, ballNo),
		logger.String("dispute_id", req.DisputeID))
	l.pub.Publish(ctx, events.Event{
		Type: events.BallAbandoned, MatchID: g.MatchID, InningsID: g.InningsID,
		Sequence: g.Sequence, Payload: g, At: g.RecordedAt,
	})
	l.runHooks(req.InningsID)
	return g, nil
}

// Replay returns the committed balls of an innings in sequence order. It is
// the only way to read ball history.
func (l *Ledger) Replay(ctx context.Context, inningsID string) ([]model.Ball, error) {
	if _, err := l.store.Innings(ctx, inningsID); err != nil {
		return nil, err
	}
	return l.store.Balls(ctx, inningsID)
}

// Log returns the full record of an innings.
func (l *Ledger) Log(ctx context.Context, inningsID string) (Log, error) {
	in, err := l.ProjectionInput(ctx, inningsID)
	if err != nil {
		return Log{}, err
	}
	wickets, err := l.store.Wickets(ctx, inningsID)
	if err != nil {
		return Log{}, err
	}
	st := projection.Project(in)
	return Log{Innings: in.Innings, Balls: in.Balls, Wickets: wickets, Overs: st.OverSummaries, Gaps: in.Gaps}, nil
}

// NextSlot returns the slot the ledger will accept next.
func (l *Ledger) NextSlot(ctx context.Context, inningsID string) (model.Slot, error) {
	unlock := l.locks.Lock(inningsID)
	defer unlock()
	h, err := l.head(ctx, inningsID)
	if err != nil {
		return model.Slot{}, err
	}
	over, ball := h.acc.Next()
	return model.Slot{InningsID: inningsID, OverNumber: over, BallNumber: ball}, nil
}

// LastHash returns the event hash at the tip of the innings chain.
func (l *Ledger) LastHash(ctx context.Context, inningsID string) (string, error) {
	unlock := l.locks.Lock(inningsID)
	defer unlock()
	h, err := l.head(ctx, inningsID)
	if err != nil {
		return "", err
	}
	return h.lastHash, nil
}

// Verify walks the stored chain of an innings.
func (l *Ledger) Verify(ctx context.Context, inningsID string) (integrity.Report, error) {
	in, err := l.ProjectionInput(ctx, inningsID)
	if err != nil {
		return integrity.Report{}, err
	}
	r := integrity.Verify(inningsID, in.Balls, in.Wickets)
	if !r.Valid {
		l.log.Error(ctx, "hash chain verification failed",
			logger.InningsID(inningsID),
			logger.String("ball_id", r.Mismatch.BallID),
			logger.String("reason", r.Mismatch.Reason))
	}
	return r, nil
}

// ProjectionInput reads everything a projection needs from the store.
func (l *Ledger) ProjectionInput(ctx context.Context, inningsID string) (projection.Input, error) {
	inn, err := l.store.Innings(ctx, inningsID)
	if err != nil {
		return projection.Input{}, err
	}
	cfg, err := l.store.Match(ctx, inn.MatchID)
	if err != nil {
		return projection.Input{}, err
	}
	balls, err := l.store.Balls(ctx, inningsID)
	if err != nil {
		return projection.Input{}, err
	}
	wickets, err := l.store.Wickets(ctx, inningsID)
	if err != nil {
		return projection.Input{}, err
	}
	gaps, err := l.store.Gaps(ctx, inningsID)
	if err != nil {
		return projection.Input{}, err
	}
	wm := make(map[string]model.Wicket, len(wickets))
	for _, w := range wickets {
		wm[w.ID] = w
	}
	return projection.Input{Config: cfg, Innings: inn, Balls: balls, Wickets: wm, Gaps: gaps}, nil
}

// MatchInnings returns the match config and its innings ids in order.
func (l *Ledger) MatchInnings(ctx context.Context, matchID string) (model.MatchConfig, []string, error) {
	cfg, err := l.Match(ctx, matchID)
	if err != nil {
		return cfg, nil, err
	}
	inns, err := l.store.MatchInnings(ctx, matchID)
	if err != nil {
		return cfg, nil, err
	}
	ids := make([]string, 0, len(inns))
	for _, inn := range inns {
		ids = append(ids, inn.ID)
	}
	return cfg, ids, nil
}

// CurrentInnings returns the innings of a match that is still open.
func (l *Ledger) CurrentInnings(ctx context.Context, matchID string) (model.Innings, error) {
	inns, err := l.store.MatchInnings(ctx, matchID)
	if err != nil {
		return model.Innings{}, err
	}
	for i := len(inns) - 1; i >= 0; i-- {
		if !inns[i].IsCompleted {
			return inns[i], nil
		}
	}
	return model.Innings{}, fmt.Errorf("%w: no open innings for match %s", ErrNotFound, matchID)
}
