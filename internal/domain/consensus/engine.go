// Package consensus matches scorer claims against the validation tier of a
// match and turns agreement into ledger commits and disagreement into disputes.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crease/internal/domain/dedupe"
	"github.com/okian/crease/internal/domain/integrity"
	"github.com/okian/crease/internal/domain/keylock"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
	"github.com/okian/crease/pkg/tracing"
)

// Ledger is the part of the event ledger the engine writes through.
type Ledger interface {
	Match(ctx context.Context, matchID string) (model.MatchConfig, error)
	Innings(ctx context.Context, inningsID string) (model.Innings, error)
	CurrentInnings(ctx context.Context, matchID string) (model.Innings, error)
	NextSlot(ctx context.Context, inningsID string) (model.Slot, error)
	LastHash(ctx context.Context, inningsID string) (string, error)
	Commit(ctx context.Context, req ledger.CommitRequest) (model.Ball, error)
	Abandon(ctx context.Context, req ledger.AbandonRequest) (model.Gap, error)
}

// Disputes receives disputes raised by the engine.
type Disputes interface {
	Raise(ctx context.Context, d model.Dispute, claims []model.ScoringEvent) error
	// AddClaim attaches a late claim to a dispute that is still pending.
	AddClaim(ctx context.Context, disputeID string, ev model.ScoringEvent) error
	// Settled reports the ball or gap written for a disputed slot.
	Settled(ctx context.Context, disputeID, ballID, gapID string)
}

// Status is the outcome of a submission.
type Status string

// Submission outcomes.
const (
	StatusPending   Status = "PENDING"
	StatusCommitted Status = "COMMITTED"
	StatusDisputed  Status = "DISPUTED"
)

// Submission is one scorer's claim for one slot.
type Submission struct {
	SubmissionID string          `json:"submission_id,omitempty"`
	MatchID      string          `json:"match_id"`
	InningsID    string          `json:"innings_id,omitempty"`
	ScorerID     string          `json:"scorer_id"`
	Role         model.Role      `json:"role"`
	TeamID       string          `json:"team_id,omitempty"`
	Claim        model.BallClaim `json:"claim"`
}

// Result reports what a submission did.
type Result struct {
	Status    Status          `json:"status"`
	State     model.SlotState `json:"slot_state"`
	EventID   string          `json:"event_id"`
	EventHash string          `json:"event_hash"`
	Slot      model.Slot      `json:"slot"`
	Claims    int             `json:"claims"`
	Ball      *model.Ball     `json:"ball,omitempty"`
	DisputeID string          `json:"dispute_id,omitempty"`
}

// SlotView is a read-only copy of an open slot.
type SlotView struct {
	Slot      model.Slot           `json:"slot"`
	State     model.SlotState      `json:"state"`
	Claims    []model.ScoringEvent `json:"claims"`
	OpenedAt  time.Time            `json:"opened_at"`
	DisputeID string               `json:"dispute_id,omitempty"`
}

type pendingSlot struct {
	slot     model.Slot
	state    model.SlotState
	claims   []model.ScoringEvent
	openedAt time.Time

	final         model.BallClaim
	provenance    model.Provenance
	matching      int
	lowConfidence bool
	disputeID     string
	reason        string
}

// put adds ev, replacing an earlier claim by the same scorer. It returns the
// id of the replaced claim.
func (p *pendingSlot) put(ev model.ScoringEvent) string {
	for i, c := range p.claims {
		if c.ScorerID == ev.ScorerID {
			p.claims[i] = ev
			return c.ID
		}
	}
	p.claims = append(p.claims, ev)
	return ""
}

// book holds the open slots of one innings. slots is guarded by the innings
// lock, open by Engine.mu.
type book struct {
	matchID string
	slots   map[model.Slot]*pendingSlot
	open    int
}

type claimRef struct {
	matchID   string
	inningsID string
	slot      model.Slot
}

type flushed struct {
	balls map[model.Slot]model.Ball
	gaps  map[model.Slot]model.Gap
}

// Engine runs the consensus protocol. Work on one innings is serialized.
type Engine struct {
	ledger     Ledger
	disputes   Disputes
	log        logger.Logger
	now        func() time.Time
	newID      func() string
	window     time.Duration
	sweepEvery time.Duration
	retries    int
	seen       dedupe.Cache[Result]

	locks *keylock.Map

	mu     sync.Mutex
	books  map[string]*book
	claims map[string]claimRef
}

// New creates an engine committing to l.
func New(l Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger:     l,
		now:        time.Now,
		newID:      uuid.NewString,
		window:     model.DefaultMatchingWindow,
		sweepEvery: time.Second,
		retries:    3,
		locks:      keylock.New(),
		books:      make(map[string]*book),
		claims:     make(map[string]claimRef),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("consensus")
	}
	if e.disputes == nil {
		e.disputes = logDisputes{log: e.log}
	}
	if e.seen == nil {
		e.seen = dedupe.NewInMemory[Result]()
	}
	return e
}

// Submit records a claim and applies the tier rule of its match.
func (e *Engine) Submit(ctx context.Context, sub Submission) (res Result, err error) {
	ctx, span := tracing.Start(ctx, "consensus", "submit", tracing.Match(sub.MatchID))
	defer func() { tracing.End(span, err) }()

	if !sub.Role.CanScore() {
		return Result{}, fmt.Errorf("%w: %q", ErrForbidden, sub.Role)
	}
	if sub.ScorerID == "" {
		return Result{}, fmt.Errorf("%w: scorer_id is required", ledger.ErrValidation)
	}
	claim := sub.Claim.Normalize()
	if err := claim.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ledger.ErrValidation, err)
	}

	inn, err := e.resolveInnings(ctx, sub)
	if err != nil {
		return Result{}, err
	}

	unlock := e.locks.Lock(inn.ID)
	defer unlock()

	key := dedupeKey(inn.MatchID, sub)
	if key != "" {
		if prev, ok := e.seen.Lookup(ctx, key); ok {
			metrics.RecordDuplicateClaim()
			e.log.Debug(ctx, "duplicate submission replayed",
				logger.String("submission_id", sub.SubmissionID),
				logger.String("scorer_id", sub.ScorerID))
			return prev, nil
		}
	}

	cfg, err := e.ledger.Match(ctx, inn.MatchID)
	if err != nil {
		return Result{}, err
	}
	if !cfg.Live {
		return Result{}, fmt.Errorf("%w: %s", ledger.ErrMatchEnded, cfg.MatchID)
	}
	if inn, err = e.ledger.Innings(ctx, inn.ID); err != nil {
		return Result{}, err
	}
	if inn.IsCompleted {
		e.drop(inn.ID)
		return Result{}, fmt.Errorf("%w: %s", ledger.ErrInningsComplete, inn.ID)
	}
	r, ok := rules[cfg.Tier]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown tier %q", ledger.ErrValidation, cfg.Tier)
	}

	slot := claim.Slot(inn.ID)
	next, err := e.ledger.NextSlot(ctx, inn.ID)
	if err != nil {
		return Result{}, err
	}
	if err := inRange(slot, next); err != nil {
		return Result{}, err
	}
	prev, err := e.ledger.LastHash(ctx, inn.ID)
	if err != nil {
		return Result{}, err
	}

	ev := model.ScoringEvent{
		ID:           e.newID(),
		SubmissionID: sub.SubmissionID,
		MatchID:      inn.MatchID,
		InningsID:    inn.ID,
		ScorerID:     sub.ScorerID,
		Role:         sub.Role,
		TeamID:       sub.TeamID,
		Claim:        claim,
		PrevHash:     prev,
		EventHash:    integrity.Hash(inn.MatchID, inn.ID, slot, claim, prev),
		SubmittedAt:  e.now().UTC(),
	}

	b := e.book(inn.ID, inn.MatchID)
	defer e.track(b)
	ps, ok := b.slots[slot]
	if !ok {
		ps = &pendingSlot{slot: slot, state: model.SlotPending, openedAt: ev.SubmittedAt}
		b.slots[slot] = ps
	}
	res = Result{EventID: ev.ID, EventHash: ev.EventHash, Slot: slot}

	if r.admit != nil && (ps.state == model.SlotPending || ps.state == model.SlotDisputed) {
		if err := r.admit(ps.claims, ev, ps.state == model.SlotDisputed); err != nil {
			return Result{}, err
		}
	}

	switch ps.state {
	case model.SlotDisputed:
		if err := e.disputes.AddClaim(ctx, ps.disputeID, ev); err != nil {
			return Result{}, fmt.Errorf("attach claim: %w", err)
		}
		res.Status, res.State, res.DisputeID = StatusDisputed, ps.state, ps.disputeID
		e.finish(ctx, cfg, key, res)
		return res, nil
	case model.SlotResolved, model.SlotAbandoned:
		return Result{}, fmt.Errorf("%w: slot %s is already settled", ledger.ErrSequence, label(slot))
	}

	replaced := ps.put(ev)
	e.mu.Lock()
	delete(e.claims, replaced)
	e.claims[ev.ID] = claimRef{matchID: inn.MatchID, inningsID: inn.ID, slot: slot}
	e.mu.Unlock()
	if replaced != "" {
		e.log.Debug(ctx, "claim replaced",
			logger.InningsID(inn.ID), logger.Slot(slot.OverNumber, slot.BallNumber),
			logger.String("scorer_id", sub.ScorerID))
	}

	if err := e.evaluate(ctx, cfg, r, ps); err != nil {
		return Result{}, err
	}
	res.Claims = len(ps.claims)
	res.State = ps.state
	res.Status = StatusPending
	if ps.state == model.SlotDisputed {
		res.Status, res.DisputeID = StatusDisputed, ps.disputeID
	}

	if ps.state == model.SlotValidated {
		out, err := e.flush(ctx, inn.ID)
		if ball, ok := out.balls[slot]; ok {
			res.Status, res.State, res.Ball = StatusCommitted, model.SlotCommitted, &ball
		} else if err != nil {
			return Result{}, err
		}
	}

	e.finish(ctx, cfg, key, res)
	return res, nil
}

func (e *Engine) finish(ctx context.Context, cfg model.MatchConfig, key string, res Result) {
	metrics.RecordSubmission(string(cfg.Tier), strings.ToLower(string(res.Status)))
	if key != "" {
		e.seen.Record(ctx, key, res)
	}
}

// evaluate applies the tier rule to the claims of a slot. Callers hold the
// innings lock.
func (e *Engine) evaluate(ctx context.Context, cfg model.MatchConfig, r rule, ps *pendingSlot) error {
	d := r.decide(ps.claims)
	switch d.verdict {
	case waiting:
		ps.state = model.SlotPending
	case agreed:
		ps.state = model.SlotValidated
		ps.final = d.claim
		ps.provenance = r.provenance
		ps.matching = d.matching
		ps.lowConfidence = r.lowConfidence
	case disputed:
		return e.raise(ctx, cfg, ps, d.kind)
	}
	return nil
}

func (e *Engine) resolveInnings(ctx context.Context, sub Submission) (model.Innings, error) {
	if sub.InningsID == "" {
		if sub.MatchID == "" {
			return model.Innings{}, fmt.Errorf("%w: match_id is required", ledger.ErrValidation)
		}
		if _, err := e.ledger.Match(ctx, sub.MatchID); err != nil {
			return model.Innings{}, err
		}
		return e.ledger.CurrentInnings(ctx, sub.MatchID)
	}
	inn, err := e.ledger.Innings(ctx, sub.InningsID)
	if err != nil {
		return model.Innings{}, err
	}
	if sub.MatchID != "" && inn.MatchID != sub.MatchID {
		return model.Innings{}, fmt.Errorf("%w: innings %s is not part of match %s", ledger.ErrValidation, inn.ID, sub.MatchID)
	}
	return inn, nil
}

// inRange accepts the next slot and later slots of the current or next over.
func inRange(slot, next model.Slot) error {
	if slot.Before(next) {
		return fmt.Errorf("%w: slot %s is already recorded, next is %s", ledger.ErrSequence, label(slot), label(next))
	}
	if slot.OverNumber > next.OverNumber+1 {
		return fmt.Errorf("%w: %w: slot %s, next is %s", ledger.ErrSequence, ErrOutOfRange, label(slot), label(next))
	}
	return nil
}

func label(s model.Slot) string {
	return fmt.Sprintf("%d.%d", s.OverNumber, s.BallNumber)
}

func dedupeKey(matchID string, sub Submission) string {
	if sub.SubmissionID == "" {
		return ""
	}
	return matchID + "/" + sub.ScorerID + "/" + sub.SubmissionID
}

// raise hands the claims of a slot to the dispute resolver. Callers hold the
// innings lock.
func (e *Engine) raise(ctx context.Context, cfg model.MatchConfig, ps *pendingSlot, kind model.DisputeType) error {
	claims := append([]model.ScoringEvent(nil), ps.claims...)
	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		ids = append(ids, c.ID)
	}
	d := model.Dispute{
		ID:        e.newID(),
		MatchID:   cfg.MatchID,
		InningsID: ps.slot.InningsID,
		Slot:      ps.slot,
		Tier:      cfg.Tier,
		Type:      kind,
		Status:    model.DisputePending,
		ClaimIDs:  ids,
		RaisedAt:  e.now().UTC(),
	}
	if err := e.disputes.Raise(ctx, d, claims); err != nil {
		return fmt.Errorf("raise dispute: %w", err)
	}
	ps.state = model.SlotDisputed
	ps.disputeID = d.ID
	ps.claims = nil
	e.mu.Lock()
	for _, id := range ids {
		delete(e.claims, id)
	}
	e.mu.Unlock()

	metrics.RecordDisputeRaised(string(kind))
	e.log.Warn(ctx, "dispute raised",
		logger.MatchID(cfg.MatchID),
		logger.InningsID(ps.slot.InningsID),
		logger.Slot(ps.slot.OverNumber, ps.slot.BallNumber),
		logger.String("dispute_id", d.ID),
		logger.String("type", string(kind)),
		logger.Int("claims", len(claims)))
	return nil
}

// flush commits or abandons settled slots in ledger order, starting at the
// next expected slot. Callers hold the innings lock.
func (e *Engine) flush(ctx context.Context, inningsID string) (flushed, error) {
	out := flushed{balls: make(map[model.Slot]model.Ball), gaps: make(map[model.Slot]model.Gap)}
	e.mu.Lock()
	b := e.books[inningsID]
	e.mu.Unlock()
	if b == nil {
		return out, nil
	}
	for {
		next, err := e.ledger.NextSlot(ctx, inningsID)
		if err != nil {
			return out, err
		}
		e.prune(ctx, b, next)
		ps, ok := b.slots[next]
		if !ok {
			return out, nil
		}
		switch ps.state {
		case model.SlotValidated, model.SlotResolved:
			ball, err := e.commit(ctx, inningsID, ps)
			if err != nil {
				e.stop(ctx, inningsID, err)
				return out, err
			}
			out.balls[next] = ball
			if ps.disputeID != "" {
				e.disputes.Settled(ctx, ps.disputeID, ball.ID, "")
			}
		case model.SlotAbandoned:
			g, err := e.ledger.Abandon(ctx, ledger.AbandonRequest{
				InningsID: inningsID, Slot: next, DisputeID: ps.disputeID, Reason: ps.reason,
			})
			if err != nil {
				e.stop(ctx, inningsID, err)
				return out, err
			}
			out.gaps[next] = g
			if ps.disputeID != "" {
				e.disputes.Settled(ctx, ps.disputeID, "", g.ID)
			}
		default:
			return out, nil
		}
		e.settle(b, ps)
	}
}

// stop drops the open slots of an innings that can no longer take balls.
func (e *Engine) stop(ctx context.Context, inningsID string, err error) {
	if errors.Is(err, ledger.ErrInningsComplete) || errors.Is(err, ledger.ErrMatchEnded) {
		e.log.Info(ctx, "discarding open slots of closed innings", logger.InningsID(inningsID), logger.Error(err))
		e.drop(inningsID)
	}
}

// commit writes an agreed slot, retrying ledger conflicts a bounded number of times.
func (e *Engine) commit(ctx context.Context, inningsID string, ps *pendingSlot) (model.Ball, error) {
	claim := ps.final
	claim.OverNumber, claim.BallNumber = ps.slot.OverNumber, ps.slot.BallNumber
	req := ledger.CommitRequest{
		InningsID:     inningsID,
		Claim:         claim,
		Provenance:    ps.provenance,
		Matching:      ps.matching,
		LowConfidence: ps.lowConfidence,
	}
	var err error
	for attempt := 0; attempt <= e.retries; attempt++ {
		var ball model.Ball
		if ball, err = e.ledger.Commit(ctx, req); err == nil {
			return ball, nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			break
		}
		e.log.Warn(ctx, "ledger conflict, retrying commit",
			logger.InningsID(inningsID),
			logger.Slot(ps.slot.OverNumber, ps.slot.BallNumber),
			logger.Int("attempt", attempt+1))
	}
	return model.Ball{}, err
}

// prune removes slots the ledger has moved past, such as later claims for
// an over that ended early.
func (e *Engine) prune(ctx context.Context, b *book, next model.Slot) {
	for s, ps := range b.slots {
		if !s.Before(next) {
			continue
		}
		e.log.Warn(ctx, "dropping claims for a slot the ledger has passed",
			logger.InningsID(s.InningsID),
			logger.Slot(s.OverNumber, s.BallNumber),
			logger.String("state", string(ps.state)))
		e.settle(b, ps)
	}
}

func (e *Engine) settle(b *book, ps *pendingSlot) {
	delete(b.slots, ps.slot)
	e.mu.Lock()
	for _, c := range ps.claims {
		delete(e.claims, c.ID)
	}
	e.mu.Unlock()
}

func (e *Engine) book(inningsID, matchID string) *book {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[inningsID]
	if !ok {
		b = &book{matchID: matchID, slots: make(map[model.Slot]*pendingSlot)}
		e.books[inningsID] = b
	}
	return b
}

// drop forgets every open slot of an innings. Callers hold the innings lock.
func (e *Engine) drop(inningsID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[inningsID]
	if !ok {
		return
	}
	for _, ps := range b.slots {
		for _, c := range ps.claims {
			delete(e.claims, c.ID)
		}
	}
	delete(e.books, inningsID)
	e.updatePendingLocked()
}

// track publishes the open slot gauge. Callers hold the innings lock of b.
func (e *Engine) track(b *book) {
	e.mu.Lock()
	b.open = len(b.slots)
	e.updatePendingLocked()
	e.mu.Unlock()
}

func (e *Engine) updatePendingLocked() {
	total := 0
	for _, b := range e.books {
		total += b.open
	}
	metrics.UpdatePendingSlots(total)
}

// Withdraw cancels a claim that has not been committed or disputed yet.
func (e *Engine) Withdraw(ctx context.Context, matchID, eventID, scorerID string) (model.ScoringEvent, error) {
	e.mu.Lock()
	ref, ok := e.claims[eventID]
	e.mu.Unlock()
	if !ok || ref.matchID != matchID {
		return model.ScoringEvent{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}

	unlock := e.locks.Lock(ref.inningsID)
	defer unlock()

	b := e.book(ref.inningsID, ref.matchID)
	defer e.track(b)
	ps, ok := b.slots[ref.slot]
	if !ok || (ps.state != model.SlotPending && ps.state != model.SlotValidated) {
		return model.ScoringEvent{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	idx := -1
	for i, c := range ps.claims {
		if c.ID == eventID {
			idx = i
		}
	}
	if idx < 0 {
		return model.ScoringEvent{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	ev := ps.claims[idx]
	if ev.ScorerID != scorerID {
		return model.ScoringEvent{}, fmt.Errorf("%w: claim %s belongs to another scorer", ErrForbidden, eventID)
	}

	ps.claims = append(ps.claims[:idx], ps.claims[idx+1:]...)
	e.mu.Lock()
	delete(e.claims, eventID)
	e.mu.Unlock()
	e.log.Info(ctx, "claim withdrawn",
		logger.InningsID(ref.inningsID),
		logger.Slot(ref.slot.OverNumber, ref.slot.BallNumber),
		logger.String("scorer_id", scorerID))

	if len(ps.claims) == 0 {
		delete(b.slots, ref.slot)
		return ev, nil
	}
	cfg, err := e.ledger.Match(ctx, ref.matchID)
	if err != nil {
		return ev, err
	}
	if err := e.evaluate(ctx, cfg, rules[cfg.Tier], ps); err != nil {
		return ev, err
	}
	return ev, nil
}

// CommitResolution commits the final claim of a resolved dispute. It returns
// nil when the slot is queued behind earlier slots that are still open.
func (e *Engine) CommitResolution(ctx context.Context, d model.Dispute, final model.BallClaim, p model.Provenance, matching int) (*model.Ball, error) {
	final = final.Normalize()
	final.OverNumber, final.BallNumber = d.Slot.OverNumber, d.Slot.BallNumber
	if err := final.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrValidation, err)
	}

	unlock := e.locks.Lock(d.InningsID)
	defer unlock()

	return settleResolution(ctx, e, d, func(ps *pendingSlot) {
		ps.state = model.SlotResolved
		ps.final = final
		ps.provenance = p
		ps.matching = matching
		ps.lowConfidence = false
	}, func(out flushed) (*model.Ball, bool) {
		b, ok := out.balls[d.Slot]
		return &b, ok
	})
}

// AbandonResolution records a gap for the slot of an abandoned dispute. It
// returns nil when the gap is queued behind earlier open slots.
func (e *Engine) AbandonResolution(ctx context.Context, d model.Dispute, reason string) (*model.Gap, error) {
	unlock := e.locks.Lock(d.InningsID)
	defer unlock()

	return settleResolution(ctx, e, d, func(ps *pendingSlot) {
		ps.state = model.SlotAbandoned
		ps.reason = reason
	}, func(out flushed) (*model.Gap, bool) {
		g, ok := out.gaps[d.Slot]
		return &g, ok
	})
}

// settleResolution marks the dispute slot and flushes. Callers hold the
// innings lock.
func settleResolution[T any](ctx context.Context, e *Engine, d model.Dispute,
	mark func(*pendingSlot), pick func(flushed) (*T, bool),
) (*T, error) {
	next, err := e.ledger.NextSlot(ctx, d.InningsID)
	if err != nil {
		return nil, err
	}
	if d.Slot.Before(next) {
		return nil, fmt.Errorf("%w: slot %s is already recorded", ledger.ErrSequence, label(d.Slot))
	}

	b := e.book(d.InningsID, d.MatchID)
	defer e.track(b)
	ps, ok := b.slots[d.Slot]
	if !ok {
		ps = &pendingSlot{slot: d.Slot, openedAt: e.now().UTC()}
		b.slots[d.Slot] = ps
	}
	prevState := ps.state
	ps.disputeID = d.ID
	mark(ps)

	out, err := e.flush(ctx, d.InningsID)
	if v, ok := pick(out); ok {
		return v, nil
	}
	if err != nil {
		if cur, still := b.slots[d.Slot]; still && cur == ps {
			ps.state = prevState
			if ps.state == "" {
				ps.state = model.SlotDisputed
			}
		}
		return nil, err
	}
	e.log.Info(ctx, "resolution queued behind open slots",
		logger.InningsID(d.InningsID),
		logger.Slot(d.Slot.OverNumber, d.Slot.BallNumber),
		logger.String("next", label(next)))
	return nil, nil
}

// Pending returns the open slots of an innings in slot order.
func (e *Engine) Pending(inningsID string) []SlotView {
	unlock := e.locks.Lock(inningsID)
	defer unlock()
	e.mu.Lock()
	b := e.books[inningsID]
	e.mu.Unlock()
	if b == nil {
		return nil
	}
	out := make([]SlotView, 0, len(b.slots))
	for _, ps := range sorted(b) {
		out = append(out, SlotView{
			Slot:      ps.slot,
			State:     ps.state,
			Claims:    append([]model.ScoringEvent(nil), ps.claims...),
			OpenedAt:  ps.openedAt,
			DisputeID: ps.disputeID,
		})
	}
	return out
}

func sorted(b *book) []*pendingSlot {
	out := make([]*pendingSlot, 0, len(b.slots))
	for _, ps := range b.slots {
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].slot.Before(out[j].slot) })
	return out
}

// Sweep raises timeout disputes for slots whose matching window has expired
// at now. It returns the number of disputes raised.
func (e *Engine) Sweep(ctx context.Context, now time.Time) int {
	e.mu.Lock()
	ids := make([]string, 0, len(e.books))
	for id := range e.books {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Strings(ids)

	raised := 0
	for _, id := range ids {
		raised += e.sweepInnings(ctx, id, now)
	}
	return raised
}

func (e *Engine) sweepInnings(ctx context.Context, inningsID string, now time.Time) int {
	unlock := e.locks.Lock(inningsID)
	defer unlock()

	e.mu.Lock()
	b := e.books[inningsID]
	e.mu.Unlock()
	if b == nil {
		return 0
	}
	defer e.track(b)

	inn, err := e.ledger.Innings(ctx, inningsID)
	if err != nil {
		e.log.Error(ctx, "sweep failed to load innings", logger.InningsID(inningsID), logger.Error(err))
		return 0
	}
	cfg, err := e.ledger.Match(ctx, inn.MatchID)
	if err != nil {
		e.log.Error(ctx, "sweep failed to load match", logger.MatchID(inn.MatchID), logger.Error(err))
		return 0
	}
	if inn.IsCompleted || !cfg.Live {
		e.drop(inningsID)
		return 0
	}
	r := rules[cfg.Tier]
	if !r.timesOut {
		return 0
	}
	window := cfg.MatchingWindow
	if window <= 0 {
		window = e.window
	}

	raised := 0
	for _, ps := range sorted(b) {
		if ps.state != model.SlotPending || now.Sub(ps.openedAt) < window {
			continue
		}
		if err := e.raise(ctx, cfg, ps, model.DisputeTimeout); err != nil {
			e.log.Error(ctx, "failed to raise timeout dispute",
				logger.InningsID(inningsID),
				logger.Slot(ps.slot.OverNumber, ps.slot.BallNumber),
				logger.Error(err))
			continue
		}
		e.log.Warn(ctx, "slot timed out",
			logger.InningsID(inningsID),
			logger.Slot(ps.slot.OverNumber, ps.slot.BallNumber),
			logger.Error(fmt.Errorf("%w after %s", ErrConsensusTimeout, window)))
		raised++
	}
	return raised
}

// Run sweeps on a ticker until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(e.sweepEvery)
	defer t.Stop()
	e.log.Info(ctx, "consensus sweeper started", logger.Duration("interval", e.sweepEvery))
	for {
		select {
		case <-ctx.Done():
			e.log.Info(ctx, "consensus sweeper stopped")
			return nil
		case <-t.C:
			e.Sweep(ctx, e.now())
		}
	}
}

// logDisputes is used when no resolver is wired. Disputes are only logged.
type logDisputes struct {
	log logger.Logger
}

func (l logDisputes) Raise(ctx context.Context, d model.Dispute, _ []model.ScoringEvent) error {
	l.log.Warn(ctx, "dispute raised with no resolver attached", logger.String("dispute_id", d.ID))
	return nil
}

func (l logDisputes) AddClaim(ctx context.Context, disputeID string, _ model.ScoringEvent) error {
	l.log.Warn(ctx, "claim for disputed slot with no resolver attached", logger.String("dispute_id", disputeID))
	return nil
}

func (l logDisputes) Settled(context.Context, string, string, string) {}
