package dispute_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type sink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *sink) Publish(_ context.Context, e events.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *sink) count(t events.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type stack struct {
	ctx      context.Context
	ledger   *ledger.Ledger
	engine   *consensus.Engine
	resolver *dispute.Resolver
	events   *sink
	now      time.Time
}

func newStack(tier model.Tier) *stack {
	return build(tier, true)
}

// build wires the components; closing innings only reach the resolver when
// watchClose is set.
func build(tier model.Tier, watchClose bool) *stack {
	s := &stack{ctx: context.Background(), events: &sink{}, now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return s.now }
	s.ledger = ledger.New(ledger.WithPublisher(s.events))
	s.resolver = dispute.New(dispute.WithPublisher(s.events), dispute.WithClock(clock))
	s.engine = consensus.New(s.ledger, consensus.WithDisputes(s.resolver), consensus.WithClock(clock))
	s.resolver.SetCommitter(s.engine)
	if watchClose {
		s.ledger.OnClose(func(ctx context.Context, inn model.Innings, reason string) {
			s.resolver.CloseInnings(ctx, inn.ID, reason)
		})
	}

	if _, err := s.ledger.RegisterMatch(s.ctx, model.MatchConfig{MatchID: "m1", Tier: tier}); err != nil {
		panic(err)
	}
	if _, err := s.ledger.StartInnings(s.ctx, model.Innings{
		ID: "i1", MatchID: "m1", BattingTeamID: "home", BowlingTeamID: "away",
		StrikerID: "s1", NonStrikerID: "s2", BowlerID: "b1",
	}); err != nil {
		panic(err)
	}
	return s
}

func runs(n int) model.BallClaim {
	return model.BallClaim{
		OverNumber: 0, BallNumber: 1, BowlerID: "b1", StrikerID: "s1", NonStrikerID: "s2",
		RunsScored: n, ExtraType: model.ExtraNone, IsBoundary: n == 4 || n == 6,
	}
}

// at is runs(n) on another ball of the first over.
func at(ball, n int) model.BallClaim {
	c := runs(n)
	c.BallNumber = ball
	return c
}

func (s *stack) submit(scorer string, role model.Role, c model.BallClaim) consensus.Result {
	res, err := s.engine.Submit(s.ctx, consensus.Submission{MatchID: "m1", ScorerID: scorer, Role: role, Claim: c})
	if err != nil {
		panic(err)
	}
	return res
}

// disputed raises a runs mismatch on the first ball and returns its id.
func (s *stack) disputed(claims ...int) string {
	var res consensus.Result
	for i, n := range claims {
		role := model.RoleScorer
		if i == 2 {
			role = model.RoleUmpire
		}
		res = s.submit([]string{"scorer-a", "scorer-b", "umpire"}[i], role, runs(n))
	}
	return res.DisputeID
}

func (s *stack) balls() []model.Ball {
	balls, _ := s.ledger.Replay(s.ctx, "i1")
	return balls
}

func TestUmpireOverride(t *testing.T) {
	convey.Convey("Given a DUAL dispute over one or two runs", t, func() {
		s := newStack(model.TierDual)
		id := s.disputed(1, 2)
		convey.So(id, convey.ShouldNotBeEmpty)
		convey.So(s.events.count(events.DisputeRaised), convey.ShouldEqual, 1)

		convey.Convey("When the umpire rules a four", func() {
			four := runs(4)
			res, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "ump", Role: model.RoleUmpire, Claim: &four})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then exactly one ball is committed with umpire provenance", func() {
				balls := s.balls()
				convey.So(len(balls), convey.ShouldEqual, 1)
				convey.So(balls[0].RunsScored, convey.ShouldEqual, 4)
				convey.So(balls[0].Provenance, convey.ShouldEqual, model.ProvenanceUmpireOverride)
				convey.So(res.Ball, convey.ShouldNotBeNil)
				convey.So(res.Ball.ID, convey.ShouldEqual, balls[0].ID)
			})

			convey.Convey("Then the dispute is resolved", func() {
				v, err := s.resolver.Get(s.ctx, id)
				convey.So(err, convey.ShouldBeNil)
				convey.So(v.Dispute.Status, convey.ShouldEqual, model.DisputeResolved)
				convey.So(v.Dispute.Method, convey.ShouldEqual, model.ResolutionUmpireOverride)
				convey.So(v.Dispute.Final.RunsScored, convey.ShouldEqual, 4)
				convey.So(v.Dispute.BallID, convey.ShouldEqual, res.Ball.ID)
				convey.So(v.Dispute.ResolvedAt, convey.ShouldNotBeNil)
				convey.So(s.events.count(events.DisputeResolved), convey.ShouldEqual, 1)
				convey.So(s.resolver.List(s.ctx, "m1", model.DisputePending), convey.ShouldBeEmpty)
			})

			convey.Convey("Then resolving again is rejected", func() {
				_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "ump", Role: model.RoleUmpire, Claim: &four})
				convey.So(errors.Is(err, dispute.ErrClosed), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the umpire submits a late claim", func() {
			late := s.submit("umpire", model.RoleUmpire, runs(2))
			convey.So(late.Status, convey.ShouldEqual, consensus.StatusDisputed)

			convey.Convey("Then any later decision applies the umpire's claim first", func() {
				res, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "cap", Role: model.RoleCaptain, TeamID: "home"})
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Dispute.Method, convey.ShouldEqual, model.ResolutionUmpireOverride)
				convey.So(res.Ball.RunsScored, convey.ShouldEqual, 2)
			})
		})
	})
}

func TestLadder(t *testing.T) {
	convey.Convey("Given a DUAL dispute", t, func() {
		s := newStack(model.TierDual)
		id := s.disputed(1, 2)

		convey.Convey("When a reviewer confirms two runs", func() {
			two := runs(2)
			res, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "tv", Role: model.RoleReviewer, Claim: &two})
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Dispute.Method, convey.ShouldEqual, model.ResolutionVideoReview)
			convey.So(s.balls()[0].Provenance, convey.ShouldEqual, model.ProvenanceVideoReview)
		})

		convey.Convey("When one captain speaks", func() {
			one := runs(1)
			_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "cap-h", Role: model.RoleCaptain, TeamID: "home", Claim: &one})

			convey.Convey("Then the dispute stays pending", func() {
				convey.So(errors.Is(err, dispute.ErrUnresolved), convey.ShouldBeTrue)
				convey.So(s.balls(), convey.ShouldBeEmpty)
				convey.So(len(s.resolver.List(s.ctx, "m1", model.DisputePending)), convey.ShouldEqual, 1)
			})

			convey.Convey("Then the other captain agreeing settles it", func() {
				res, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "cap-a", Role: model.RoleCaptain, TeamID: "away", Claim: &one})
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Dispute.Method, convey.ShouldEqual, model.ResolutionCaptainConsensus)
				convey.So(s.balls()[0].Provenance, convey.ShouldEqual, model.ProvenanceCaptainConsensus)
				convey.So(s.balls()[0].MatchingSubmissions, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When captains of the same team agree", func() {
			one := runs(1)
			_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "cap-h", Role: model.RoleCaptain, TeamID: "home", Claim: &one})
			convey.So(errors.Is(err, dispute.ErrUnresolved), convey.ShouldBeTrue)
			_, err = s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "vice-h", Role: model.RoleCaptain, TeamID: "home", Claim: &one})
			convey.So(errors.Is(err, dispute.ErrUnresolved), convey.ShouldBeTrue)
			convey.So(s.balls(), convey.ShouldBeEmpty)
		})

		convey.Convey("When the scorers agree on resubmission under DUAL", func() {
			two := runs(2)
			_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "scorer-a", Role: model.RoleScorer, Claim: &two})
			convey.Convey("Then majority vote does not apply outside TRIPLE", func() {
				convey.So(errors.Is(err, dispute.ErrUnresolved), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a scorer rules on the dispute themselves", func() {
			six := runs(6)
			_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "scorer-a", Role: model.RoleScorer, Claim: &six})

			convey.Convey("Then no official's authority is assumed", func() {
				convey.So(errors.Is(err, dispute.ErrUnresolved), convey.ShouldBeTrue)
				convey.So(s.balls(), convey.ShouldBeEmpty)
				v, err := s.resolver.Get(s.ctx, id)
				convey.So(err, convey.ShouldBeNil)
				convey.So(v.Dispute.Status, convey.ShouldEqual, model.DisputePending)
				last := v.Claims[len(v.Claims)-1]
				convey.So(last.ScorerID, convey.ShouldEqual, "scorer-a")
				convey.So(last.Role, convey.ShouldEqual, model.RoleScorer)
			})

			convey.Convey("Then a later captain's decision still cannot claim umpire provenance", func() {
				_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "cap-h", Role: model.RoleCaptain, TeamID: "home", Claim: &six})
				convey.So(errors.Is(err, dispute.ErrUnresolved), convey.ShouldBeTrue)
				convey.So(s.balls(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When an official abandons the ball", func() {
			res, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "tv", Role: model.RoleReviewer, Abandon: true, Reason: "no footage"})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then a gap is recorded and no ball exists for the slot", func() {
				convey.So(res.Dispute.Status, convey.ShouldEqual, model.DisputeAbandoned)
				convey.So(res.Gap, convey.ShouldNotBeNil)
				convey.So(res.Gap.Reason, convey.ShouldEqual, "no footage")
				convey.So(s.balls(), convey.ShouldBeEmpty)
				next, _ := s.ledger.NextSlot(s.ctx, "i1")
				convey.So(next.BallNumber, convey.ShouldEqual, 2)
				convey.So(s.events.count(events.BallAbandoned), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a captain asks to abandon", func() {
			_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "cap", Role: model.RoleCaptain, Abandon: true})
			convey.So(errors.Is(err, dispute.ErrForbidden), convey.ShouldBeTrue)
		})

		convey.Convey("When a spectator tries to decide", func() {
			_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "fan", Role: model.RoleSpectator})
			convey.So(errors.Is(err, dispute.ErrForbidden), convey.ShouldBeTrue)
		})

		convey.Convey("When the dispute does not exist", func() {
			_, err := s.resolver.Resolve(s.ctx, "nope", dispute.Decision{ActorID: "ump", Role: model.RoleUmpire})
			convey.So(errors.Is(err, dispute.ErrNotFound), convey.ShouldBeTrue)
		})
	})
}

func TestMajorityVote(t *testing.T) {
	convey.Convey("Given a TRIPLE dispute between two scorers that timed out", t, func() {
		s := newStack(model.TierTriple)
		s.submit("scorer-a", model.RoleScorer, runs(1))
		s.submit("scorer-b", model.RoleScorer, runs(2))
		s.now = s.now.Add(time.Minute)
		convey.So(s.engine.Sweep(s.ctx, s.now), convey.ShouldEqual, 1)
		ds := s.resolver.List(s.ctx, "m1", model.DisputePending)
		convey.So(len(ds), convey.ShouldEqual, 1)
		convey.So(ds[0].Type, convey.ShouldEqual, model.DisputeTimeout)

		convey.Convey("When scorer A resubmits agreeing with B", func() {
			two := runs(2)
			res, err := s.resolver.Resolve(s.ctx, ds[0].ID, dispute.Decision{ActorID: "scorer-a", Role: model.RoleScorer, Claim: &two})

			convey.Convey("Then the majority claim is committed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Dispute.Method, convey.ShouldEqual, model.ResolutionMajorityVote)
				balls := s.balls()
				convey.So(len(balls), convey.ShouldEqual, 1)
				convey.So(balls[0].RunsScored, convey.ShouldEqual, 2)
				convey.So(balls[0].Provenance, convey.ShouldEqual, model.ProvenanceMajorityVote)
			})
		})
	})
}

func TestClosedInnings(t *testing.T) {
	convey.Convey("Given a pending DUAL dispute", t, func() {
		s := newStack(model.TierDual)
		id := s.disputed(1, 2)
		convey.So(s.resolver.Open(), convey.ShouldEqual, 1)

		convey.Convey("When the innings is declared", func() {
			_, err := s.ledger.CompleteInnings(s.ctx, "i1", model.CompletionDeclared)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the dispute is abandoned with the innings", func() {
				v, err := s.resolver.Get(s.ctx, id)
				convey.So(err, convey.ShouldBeNil)
				convey.So(v.Dispute.Status, convey.ShouldEqual, model.DisputeAbandoned)
				convey.So(v.Dispute.Method, convey.ShouldEqual, model.ResolutionAbandon)
				convey.So(v.Dispute.Reason, convey.ShouldContainSubstring, "declared")
				convey.So(v.Dispute.GapID, convey.ShouldBeEmpty)
				convey.So(v.Dispute.ResolvedAt, convey.ShouldNotBeNil)
				convey.So(s.resolver.Open(), convey.ShouldEqual, 0)
				convey.So(s.events.count(events.DisputeResolved), convey.ShouldEqual, 1)
			})

			convey.Convey("Then it is no longer re-announced", func() {
				convey.So(s.resolver.Remind(s.ctx, s.now.Add(time.Hour)), convey.ShouldEqual, 0)
			})

			convey.Convey("Then later decisions find it closed", func() {
				_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "ump", Role: model.RoleUmpire, Abandon: true})
				convey.So(errors.Is(err, dispute.ErrClosed), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the match ends", func() {
			_, err := s.ledger.EndMatch(s.ctx, "m1")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the dispute is abandoned as well", func() {
				v, _ := s.resolver.Get(s.ctx, id)
				convey.So(v.Dispute.Status, convey.ShouldEqual, model.DisputeAbandoned)
				convey.So(v.Dispute.Reason, convey.ShouldEqual, "match ended")
				convey.So(s.resolver.Open(), convey.ShouldEqual, 0)
			})
		})
	})

	convey.Convey("Given a dispute whose innings closed without the resolver being told", t, func() {
		s := build(model.TierDual, false)
		id := s.disputed(1, 2)
		_, err := s.ledger.CompleteInnings(s.ctx, "i1", model.CompletionDeclared)
		convey.So(err, convey.ShouldBeNil)
		convey.So(s.resolver.Open(), convey.ShouldEqual, 1)

		convey.Convey("When the umpire abandons it", func() {
			res, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "ump", Role: model.RoleUmpire, Abandon: true, Reason: "rain"})

			convey.Convey("Then it closes without a gap", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Dispute.Status, convey.ShouldEqual, model.DisputeAbandoned)
				convey.So(res.Gap, convey.ShouldBeNil)
				convey.So(res.Queued, convey.ShouldBeFalse)
				convey.So(s.resolver.Open(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the umpire rules a ball", func() {
			four := runs(4)
			_, err := s.resolver.Resolve(s.ctx, id, dispute.Decision{ActorID: "ump", Role: model.RoleUmpire, Claim: &four})

			convey.Convey("Then nothing is written and the dispute still closes", func() {
				convey.So(errors.Is(err, dispute.ErrClosed), convey.ShouldBeTrue)
				convey.So(s.balls(), convey.ShouldBeEmpty)
				v, _ := s.resolver.Get(s.ctx, id)
				convey.So(v.Dispute.Status, convey.ShouldEqual, model.DisputeAbandoned)
				convey.So(s.resolver.Open(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestQueuedResolution(t *testing.T) {
	convey.Convey("Given disputes on the first two balls", t, func() {
		s := newStack(model.TierDual)
		first := s.disputed(1, 2)
		s.submit("scorer-a", model.RoleScorer, at(2, 0))
		second := s.submit("scorer-b", model.RoleScorer, at(2, 1)).DisputeID
		convey.So(second, convey.ShouldNotBeEmpty)

		convey.Convey("When the second is ruled before the first", func() {
			four := at(2, 4)
			res, err := s.resolver.Resolve(s.ctx, second, dispute.Decision{ActorID: "ump", Role: model.RoleUmpire, Claim: &four})
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Queued, convey.ShouldBeTrue)
			convey.So(res.Dispute.BallID, convey.ShouldBeEmpty)
			convey.So(s.events.count(events.DisputeSettled), convey.ShouldEqual, 0)

			convey.Convey("Then ruling the first writes both balls and fills in the second", func() {
				two := runs(2)
				_, err := s.resolver.Resolve(s.ctx, first, dispute.Decision{ActorID: "ump", Role: model.RoleUmpire, Claim: &two})
				convey.So(err, convey.ShouldBeNil)
				balls := s.balls()
				convey.So(len(balls), convey.ShouldEqual, 2)
				convey.So(balls[1].RunsScored, convey.ShouldEqual, 4)

				v, err := s.resolver.Get(s.ctx, second)
				convey.So(err, convey.ShouldBeNil)
				convey.So(v.Dispute.BallID, convey.ShouldEqual, balls[1].ID)
				convey.So(s.events.count(events.DisputeSettled), convey.ShouldEqual, 1)

				v, _ = s.resolver.Get(s.ctx, first)
				convey.So(v.Dispute.BallID, convey.ShouldEqual, balls[0].ID)
			})
		})
	})
}

func TestRemind(t *testing.T) {
	convey.Convey("Given a pending dispute", t, func() {
		s := newStack(model.TierDual)
		s.disputed(1, 2)

		convey.Convey("Then no reminder is sent before the interval", func() {
			convey.So(s.resolver.Remind(s.ctx, s.now.Add(time.Minute)), convey.ShouldEqual, 0)
		})

		convey.Convey("Then a reminder is sent once per interval", func() {
			at := s.now.Add(dispute.DefaultAlertInterval)
			convey.So(s.resolver.Remind(s.ctx, at), convey.ShouldEqual, 1)
			convey.So(s.resolver.Remind(s.ctx, at.Add(time.Second)), convey.ShouldEqual, 0)
			convey.So(s.resolver.Remind(s.ctx, at.Add(dispute.DefaultAlertInterval)), convey.ShouldEqual, 1)
			convey.So(s.events.count(events.DisputeReminder), convey.ShouldEqual, 2)
		})
	})
}
