// Package dispute holds unresolved claims and settles them through a fixed
// ladder: umpire override, video review, majority vote, captain consensus and
// finally an explicit abandon.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/internal/domain/keylock"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
	"github.com/okian/crease/pkg/tracing"
)

// DefaultAlertInterval is how often a pending dispute is re-announced.
const DefaultAlertInterval = 2 * time.Minute

// Committer feeds a resolution back into the commit path.
type Committer interface {
	CommitResolution(ctx context.Context, d model.Dispute, final model.BallClaim, p model.Provenance, matching int) (*model.Ball, error)
	AbandonResolution(ctx context.Context, d model.Dispute, reason string) (*model.Gap, error)
}

// View is a dispute with the claims it holds.
type View struct {
	Dispute model.Dispute        `json:"dispute"`
	Claims  []model.ScoringEvent `json:"claims"`
}

// Resolution is the outcome of Resolve. Ball and Gap are both nil when the
// slot waits behind earlier open slots.
type Resolution struct {
	Dispute model.Dispute `json:"dispute"`
	Ball    *model.Ball   `json:"ball,omitempty"`
	Gap     *model.Gap    `json:"gap,omitempty"`
	Queued  bool          `json:"queued,omitempty"`
}

type record struct {
	d      model.Dispute
	claims []model.ScoringEvent
	// resolving is set while Resolve is talking to the committer.
	resolving bool
	// ballID and gapID are reported by the committer once the slot is written.
	ballID, gapID string
}

// Resolver stores disputes and applies resolutions.
type Resolver struct {
	pub      events.Publisher
	log      logger.Logger
	now      func() time.Time
	newID    func() string
	interval time.Duration

	locks *keylock.Map

	mu        sync.RWMutex
	committer Committer
	disputes  map[string]*record
	byMatch   map[string][]string
}

// New creates a resolver. A committer must be attached with SetCommitter
// before disputes can be resolved.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		pub:      events.Nop,
		now:      time.Now,
		newID:    uuid.NewString,
		interval: DefaultAlertInterval,
		locks:    keylock.New(),
		disputes: make(map[string]*record),
		byMatch:  make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("dispute")
	}
	return r
}

// SetCommitter attaches the commit path, normally the consensus engine.
func (r *Resolver) SetCommitter(c Committer) {
	r.mu.Lock()
	r.committer = c
	r.mu.Unlock()
}

// Raise stores a new pending dispute and announces it.
func (r *Resolver) Raise(ctx context.Context, d model.Dispute, claims []model.ScoringEvent) error {
	if d.ID == "" {
		d.ID = r.newID()
	}
	if d.RaisedAt.IsZero() {
		d.RaisedAt = r.now().UTC()
	}
	d.Status = model.DisputePending
	d.LastAlertAt = d.RaisedAt

	r.mu.Lock()
	if _, ok := r.disputes[d.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: dispute %s already raised", ledger.ErrConflict, d.ID)
	}
	rec := &record{d: d, claims: append([]model.ScoringEvent(nil), claims...)}
	r.disputes[d.ID] = rec
	r.byMatch[d.MatchID] = append(r.byMatch[d.MatchID], d.ID)
	view := rec.view()
	pending := r.pendingLocked()
	r.mu.Unlock()

	metrics.UpdateDisputesPending(pending)
	r.pub.Publish(ctx, events.Event{
		Type: events.DisputeRaised, MatchID: d.MatchID, InningsID: d.InningsID,
		Payload: events.DisputePayload{Dispute: view.Dispute, Claims: view.Claims}, At: d.RaisedAt,
	})
	r.log.Info(ctx, "dispute stored",
		logger.MatchID(d.MatchID),
		logger.String("dispute_id", d.ID),
		logger.Slot(d.Slot.OverNumber, d.Slot.BallNumber),
		logger.String("type", string(d.Type)))
	return nil
}

// AddClaim attaches a claim that arrived after the dispute was raised.
func (r *Resolver) AddClaim(ctx context.Context, disputeID string, ev model.ScoringEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.disputes[disputeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, disputeID)
	}
	if rec.d.Status != model.DisputePending {
		return fmt.Errorf("%w: %s", ErrClosed, disputeID)
	}
	rec.claims = append(rec.claims, ev)
	rec.d.ClaimIDs = append(rec.d.ClaimIDs, ev.ID)
	r.log.Debug(ctx, "claim attached to dispute",
		logger.String("dispute_id", disputeID),
		logger.String("scorer_id", ev.ScorerID))
	return nil
}

// Get returns a dispute and its claims.
func (r *Resolver) Get(_ context.Context, id string) (View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.disputes[id]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.view(), nil
}

// List returns the disputes of a match, oldest first. An empty status
// returns every dispute.
func (r *Resolver) List(_ context.Context, matchID string, status model.DisputeStatus) []model.Dispute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Dispute, 0, len(r.byMatch[matchID]))
	for _, id := range r.byMatch[matchID] {
		d := r.disputes[id].d
		if status == "" || d.Status == status {
			out = append(out, copyDispute(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RaisedAt.Before(out[j].RaisedAt) })
	return out
}

// Resolve applies the first rung of the ladder that fits the dispute and the
// decision. ErrUnresolved leaves the dispute pending.
func (r *Resolver) Resolve(ctx context.Context, id string, dec Decision) (res Resolution, err error) {
	ctx, span := tracing.Start(ctx, "dispute", "resolve")
	defer func() { tracing.End(span, err) }()

	switch dec.Role {
	case model.RoleUmpire, model.RoleReviewer, model.RoleCaptain, model.RoleScorer:
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrForbidden, dec.Role)
	}
	if dec.Abandon && dec.Role != model.RoleUmpire && dec.Role != model.RoleReviewer {
		return Resolution{}, fmt.Errorf("%w: only officials may abandon a ball", ErrForbidden)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.Lock()
	rec, ok := r.disputes[id]
	if !ok {
		r.mu.Unlock()
		return Resolution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.d.Status != model.DisputePending {
		r.mu.Unlock()
		return Resolution{}, fmt.Errorf("%w: %s is %s", ErrClosed, id, rec.d.Status)
	}
	v, err := r.vote(rec.d, dec)
	if err != nil {
		r.mu.Unlock()
		return Resolution{}, err
	}
	if v != nil {
		rec.claims = append(rec.claims, *v)
		rec.d.ClaimIDs = append(rec.d.ClaimIDs, v.ID)
	}
	d := copyDispute(rec.d)
	pool := append([]model.ScoringEvent(nil), rec.claims...)
	committer := r.committer
	rec.resolving = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		rec.resolving = false
		r.mu.Unlock()
	}()

	if dec.Claim != nil {
		c := dec.Claim.Normalize()
		c.OverNumber, c.BallNumber = d.Slot.OverNumber, d.Slot.BallNumber
		dec.Claim = &c
	}

	var out outcome
	found := false
	for _, s := range ladder {
		if out, found = s(d.Tier, dec, pool); found {
			break
		}
	}
	if !found {
		r.log.Info(ctx, "dispute still unresolved",
			logger.String("dispute_id", id),
			logger.String("role", string(dec.Role)),
			logger.Int("claims", len(pool)))
		return Resolution{Dispute: d}, fmt.Errorf("%w: %s", ErrUnresolved, id)
	}
	if committer == nil {
		return Resolution{}, ErrNoCommitter
	}

	res = Resolution{}
	at := r.now().UTC()
	if out.method == model.ResolutionAbandon {
		reason := dec.Reason
		if reason == "" {
			reason = fmt.Sprintf("dispute %s abandoned by %s", id, dec.Role)
		}
		gap, err := committer.AbandonResolution(ctx, d, reason)
		if closed(err) {
			return Resolution{Dispute: r.closeClosed(ctx, rec, reason)}, nil
		}
		if err != nil {
			return Resolution{}, fmt.Errorf("abandon slot: %w", err)
		}
		d.Status = model.DisputeAbandoned
		d.Reason = reason
		if gap != nil {
			d.GapID = gap.ID
		}
		res.Gap = gap
		res.Queued = gap == nil
	} else {
		final := out.claim.Normalize()
		final.OverNumber, final.BallNumber = d.Slot.OverNumber, d.Slot.BallNumber
		ball, err := committer.CommitResolution(ctx, d, final, out.method.Provenance(), out.matching)
		if closed(err) {
			r.closeClosed(ctx, rec, "innings closed")
			return Resolution{}, fmt.Errorf("%w: %s: %w", ErrClosed, id, err)
		}
		if err != nil {
			return Resolution{}, fmt.Errorf("commit resolution: %w", err)
		}
		d.Status = model.DisputeResolved
		d.Final = &final
		if ball != nil {
			d.BallID = ball.ID
		}
		res.Ball = ball
		res.Queued = ball == nil
	}
	d.Method = out.method
	d.ResolvedAt = &at

	r.mu.Lock()
	// The queued slot may already have been written by a concurrent flush.
	if d.BallID == "" && d.GapID == "" {
		d.BallID, d.GapID = rec.ballID, rec.gapID
		res.Queued = d.BallID == "" && d.GapID == ""
	}
	rec.d.Status, rec.d.Method, rec.d.Final, rec.d.Reason = d.Status, d.Method, d.Final, d.Reason
	rec.d.BallID, rec.d.GapID, rec.d.ResolvedAt = d.BallID, d.GapID, d.ResolvedAt
	pending := r.pendingLocked()
	r.mu.Unlock()
	res.Dispute = d

	metrics.RecordDisputeResolved(string(out.method))
	metrics.UpdateDisputesPending(pending)
	r.pub.Publish(ctx, events.Event{
		Type: events.DisputeResolved, MatchID: d.MatchID, InningsID: d.InningsID,
		Payload: events.DisputePayload{Dispute: d, Ball: res.Ball, Gap: res.Gap}, At: at,
	})
	r.log.Info(ctx, "dispute resolved",
		logger.MatchID(d.MatchID),
		logger.String("dispute_id", id),
		logger.String("method", string(out.method)),
		logger.Bool("queued", res.Queued))
	return res, nil
}

// closed reports whether err means the innings can take no more balls.
func closed(err error) bool {
	return errors.Is(err, ledger.ErrInningsComplete) || errors.Is(err, ledger.ErrMatchEnded)
}

// closeClosed abandons a dispute whose innings closed while it was being
// resolved. No gap is written.
func (r *Resolver) closeClosed(ctx context.Context, rec *record, reason string) model.Dispute {
	at := r.now().UTC()
	r.mu.Lock()
	abandonLocked(rec, reason, at)
	d := copyDispute(rec.d)
	pending := r.pendingLocked()
	r.mu.Unlock()
	r.announceClosed(ctx, []model.Dispute{d}, pending, at)
	return d
}

func abandonLocked(rec *record, reason string, at time.Time) {
	rec.d.Status = model.DisputeAbandoned
	rec.d.Method = model.ResolutionAbandon
	rec.d.Reason = reason
	rec.d.ResolvedAt = &at
}

func (r *Resolver) announceClosed(ctx context.Context, list []model.Dispute, pending int, at time.Time) {
	if len(list) == 0 {
		return
	}
	metrics.UpdateDisputesPending(pending)
	for _, d := range list {
		metrics.RecordDisputeResolved(string(model.ResolutionAbandon))
		r.pub.Publish(ctx, events.Event{
			Type: events.DisputeResolved, MatchID: d.MatchID, InningsID: d.InningsID,
			Payload: events.DisputePayload{Dispute: d}, At: at,
		})
		r.log.Info(ctx, "dispute abandoned with its innings",
			logger.MatchID(d.MatchID),
			logger.String("dispute_id", d.ID),
			logger.String("reason", d.Reason))
	}
}

// CloseInnings abandons every pending dispute of an innings that can take
// no more balls. Disputes being resolved at that moment are left to Resolve.
// It returns how many disputes were closed.
func (r *Resolver) CloseInnings(ctx context.Context, inningsID, reason string) int {
	at := r.now().UTC()
	var list []model.Dispute
	r.mu.Lock()
	for _, rec := range r.disputes {
		if rec.d.InningsID != inningsID || rec.d.Status != model.DisputePending || rec.resolving {
			continue
		}
		abandonLocked(rec, reason, at)
		list = append(list, copyDispute(rec.d))
	}
	pending := r.pendingLocked()
	r.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].RaisedAt.Before(list[j].RaisedAt) })
	r.announceClosed(ctx, list, pending, at)
	return len(list)
}

// Settled records the ball or gap written for a dispute's slot. Resolutions
// queued behind earlier slots learn their record here and are announced
// with a dispute_settled event.
func (r *Resolver) Settled(ctx context.Context, disputeID, ballID, gapID string) {
	r.mu.Lock()
	rec, ok := r.disputes[disputeID]
	if !ok {
		r.mu.Unlock()
		return
	}
	rec.ballID, rec.gapID = ballID, gapID
	if rec.resolving || rec.d.Status == model.DisputePending || rec.d.BallID != "" || rec.d.GapID != "" {
		r.mu.Unlock()
		return
	}
	rec.d.BallID, rec.d.GapID = ballID, gapID
	d := copyDispute(rec.d)
	r.mu.Unlock()

	r.pub.Publish(ctx, events.Event{
		Type: events.DisputeSettled, MatchID: d.MatchID, InningsID: d.InningsID,
		Payload: events.DisputePayload{Dispute: d}, At: r.now().UTC(),
	})
	r.log.Info(ctx, "queued resolution written",
		logger.String("dispute_id", d.ID),
		logger.String("ball_id", ballID),
		logger.String("gap_id", gapID))
}

// vote records the deciding official's claim as a position on the dispute.
// Reviewers rule rather than vote. Callers hold r.mu.
func (r *Resolver) vote(d model.Dispute, dec Decision) (*model.ScoringEvent, error) {
	if dec.Claim == nil || dec.Role == model.RoleReviewer {
		return nil, nil
	}
	if dec.ActorID == "" {
		return nil, fmt.Errorf("%w: vote without actor", ledger.ErrValidation)
	}
	c := dec.Claim.Normalize()
	c.OverNumber, c.BallNumber = d.Slot.OverNumber, d.Slot.BallNumber
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrValidation, err)
	}
	return &model.ScoringEvent{
		ID:          r.newID(),
		MatchID:     d.MatchID,
		InningsID:   d.InningsID,
		ScorerID:    dec.ActorID,
		Role:        dec.Role,
		TeamID:      dec.TeamID,
		Claim:       c,
		SubmittedAt: r.now().UTC(),
	}, nil
}

// Remind re-announces disputes pending for at least the alert interval since
// they were raised or last announced. It returns how many were announced.
func (r *Resolver) Remind(ctx context.Context, now time.Time) int {
	type due struct {
		view View
		age  time.Duration
	}
	var list []due
	r.mu.Lock()
	for _, rec := range r.disputes {
		if rec.d.Status != model.DisputePending || now.Sub(rec.d.LastAlertAt) < r.interval {
			continue
		}
		rec.d.LastAlertAt = now
		list = append(list, due{view: rec.view(), age: now.Sub(rec.d.RaisedAt)})
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].view.Dispute.RaisedAt.Before(list[j].view.Dispute.RaisedAt) })
	for _, x := range list {
		d := x.view.Dispute
		r.pub.Publish(ctx, events.Event{
			Type: events.DisputeReminder, MatchID: d.MatchID, InningsID: d.InningsID,
			Payload: events.DisputePayload{Dispute: d, Claims: x.view.Claims, Age: x.age.Round(time.Second).String()},
			At:      now,
		})
		r.log.Warn(ctx, "dispute still pending",
			logger.MatchID(d.MatchID),
			logger.String("dispute_id", d.ID),
			logger.Duration("age", x.age))
	}
	return len(list)
}

// Run sends reminders on a ticker until ctx is done.
func (r *Resolver) Run(ctx context.Context) error {
	every := r.interval / 4
	if every < time.Second {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Remind(ctx, r.now())
		}
	}
}

// Open returns the number of pending disputes across all matches.
func (r *Resolver) Open() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingLocked()
}

func (r *Resolver) pendingLocked() int {
	n := 0
	for _, rec := range r.disputes {
		if rec.d.Status == model.DisputePending {
			n++
		}
	}
	return n
}

func (rec *record) view() View {
	return View{Dispute: copyDispute(rec.d), Claims: append([]model.ScoringEvent(nil), rec.claims...)}
}

func copyDispute(d model.Dispute) model.Dispute {
	d.ClaimIDs = append([]string(nil), d.ClaimIDs...)
	if d.Final != nil {
		f := *d.Final
		d.Final = &f
	}
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		d.ResolvedAt = &t
	}
	return d
}
