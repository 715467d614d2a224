package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/crease/internal/app"
	"github.com/okian/crease/internal/config"
	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/types"
	"github.com/okian/crease/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) seen() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingSink) has(t events.Type) bool {
	for _, got := range r.seen() {
		if got == t {
			return true
		}
	}
	return false
}

type recordingConn struct {
	mu  sync.Mutex
	got []types.Envelope
}

func (c *recordingConn) ID() string { return "spectator-1" }

func (c *recordingConn) Send(env types.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, env)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) envelopes() []types.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Envelope(nil), c.got...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.EventQueueSize = 64
	return cfg
}

func claim(over, ball, runs int) model.BallClaim {
	return model.BallClaim{
		OverNumber: over, BallNumber: ball,
		BowlerID: "b1", StrikerID: "s1", NonStrikerID: "s2",
		RunsScored: runs, ExtraType: model.ExtraNone, IsBoundary: runs == 4 || runs == 6,
	}
}

func submit(ctx context.Context, svc *service.Service, scorer string, c model.BallClaim) (consensus.Result, error) {
	return svc.Submit(ctx, consensus.Submission{MatchID: "m1", ScorerID: scorer, Role: model.RoleScorer, Claim: c})
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service that has not started", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithConfig(testConfig()))

		Convey("Then operations fail with ErrNotStarted", func() {
			_, err := svc.RegisterMatch(ctx, model.MatchConfig{MatchID: "m1", Tier: model.TierHonor})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When it is started twice and stopped twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["store"], ShouldEqual, config.DriverMemory)
			So(stats["workerCount"], ShouldEqual, 2)
			svc.Stop()
			svc.Stop()

			Convey("Then it reports stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestServiceScoring(t *testing.T) {
	Convey("Given a started service with a DUAL match", t, func() {
		ctx := context.Background()
		sink := &recordingSink{}
		svc := service.New(service.WithConfig(testConfig()), service.WithSinks(sink))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		cfg, err := svc.RegisterMatch(ctx, model.MatchConfig{MatchID: "m1", Tier: model.TierDual})
		So(err, ShouldBeNil)
		So(cfg.BallsPerOver, ShouldEqual, 6)
		So(cfg.WicketsToFall, ShouldEqual, 10)
		So(cfg.MatchingWindow, ShouldEqual, 30*time.Second)

		inn, err := svc.StartInnings(ctx, model.Innings{
			ID: "i1", MatchID: "m1", BattingTeamID: "home", BowlingTeamID: "away",
			StrikerID: "s1", NonStrikerID: "s2", BowlerID: "b1",
		})
		So(err, ShouldBeNil)
		So(inn.Number, ShouldEqual, 1)

		Convey("When both scorers agree", func() {
			first, err := submit(ctx, svc, "scorer-a", claim(0, 1, 4))
			So(err, ShouldBeNil)
			So(first.Status, ShouldEqual, consensus.StatusPending)

			pending, err := svc.Pending(ctx, "i1")
			So(err, ShouldBeNil)
			So(pending, ShouldHaveLength, 1)

			second, err := submit(ctx, svc, "scorer-b", claim(0, 1, 4))
			So(err, ShouldBeNil)
			So(second.Status, ShouldEqual, consensus.StatusCommitted)

			Convey("Then the projection and ledger reflect the ball", func() {
				st, err := svc.InningsState(ctx, "i1")
				So(err, ShouldBeNil)
				So(st.Runs, ShouldEqual, 4)
				So(st.LegalBalls, ShouldEqual, 1)

				log, err := svc.Log(ctx, "i1")
				So(err, ShouldBeNil)
				So(log.Balls, ShouldHaveLength, 1)

				rep, err := svc.Verify(ctx, "i1")
				So(err, ShouldBeNil)
				So(rep.Valid, ShouldBeTrue)
				So(rep.Checked, ShouldEqual, 1)

				pending, _ := svc.Pending(ctx, "i1")
				So(pending, ShouldBeEmpty)
			})

			Convey("Then extra sinks receive the committed ball", func() {
				So(eventually(func() bool { return sink.has(events.BallCommitted) }), ShouldBeTrue)
			})
		})

		Convey("When the scorers disagree", func() {
			_, err := submit(ctx, svc, "scorer-a", claim(0, 1, 1))
			So(err, ShouldBeNil)
			res, err := submit(ctx, svc, "scorer-b", claim(0, 1, 2))
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, consensus.StatusDisputed)
			So(res.DisputeID, ShouldNotBeEmpty)

			open, err := svc.Disputes(ctx, "m1", model.DisputePending)
			So(err, ShouldBeNil)
			So(open, ShouldHaveLength, 1)
			So(svc.GetStats()["openDisputes"], ShouldEqual, 1)

			Convey("Then an umpire ruling commits the ball", func() {
				ruling := claim(0, 1, 2)
				out, err := svc.Resolve(ctx, res.DisputeID, dispute.Decision{
					ActorID: "u1", Role: model.RoleUmpire, Claim: &ruling,
				})
				So(err, ShouldBeNil)
				So(out.Dispute.Status, ShouldEqual, model.DisputeResolved)
				So(out.Ball, ShouldNotBeNil)
				So(out.Ball.RunsScored, ShouldEqual, 2)

				st, err := svc.InningsState(ctx, "i1")
				So(err, ShouldBeNil)
				So(st.Runs, ShouldEqual, 2)

				open, _ := svc.Disputes(ctx, "m1", model.DisputePending)
				So(open, ShouldBeEmpty)
				So(eventually(func() bool { return sink.has(events.DisputeResolved) }), ShouldBeTrue)
			})

			Convey("Then the dispute view carries both claims", func() {
				v, err := svc.Dispute(ctx, res.DisputeID)
				So(err, ShouldBeNil)
				So(v.Claims, ShouldHaveLength, 2)
				So(eventually(func() bool { return sink.has(events.DisputeRaised) }), ShouldBeTrue)
			})
		})

		Convey("When a spectator joins the match", func() {
			conn := &recordingConn{}
			So(svc.Hub().Join(ctx, conn, "m1"), ShouldBeNil)

			_, _ = submit(ctx, svc, "scorer-a", claim(0, 1, 6))
			_, err := submit(ctx, svc, "scorer-b", claim(0, 1, 6))
			So(err, ShouldBeNil)

			Convey("Then the snapshot arrives first and the ball follows", func() {
				So(eventually(func() bool {
					for _, env := range conn.envelopes() {
						if env.EventType == string(events.BallCommitted) {
							return true
						}
					}
					return false
				}), ShouldBeTrue)
				So(conn.envelopes()[0].EventType, ShouldEqual, string(events.Snapshot))
			})
		})

		Convey("When the match ends", func() {
			_, err := svc.EndMatch(ctx, "m1")
			So(err, ShouldBeNil)

			Convey("Then claims are rejected", func() {
				_, err := submit(ctx, svc, "scorer-a", claim(0, 1, 1))
				So(err, ShouldNotBeNil)
			})
		})
	})
}
