package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/crease/internal/adapters/repository"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func openTemp(t *testing.T) *repository.Store {
	s, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return s
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a SQLite ledger store", t, func() {
		ctx := context.Background()
		s := openTemp(t)
		Reset(func() { _ = s.Close() })

		cfg := model.MatchConfig{MatchID: "m1", Tier: model.TierDual, BallsPerOver: 6, WicketsToFall: 10, MatchingWindow: 30 * time.Second, Live: true}
		So(s.SaveMatch(ctx, cfg), ShouldBeNil)
		inn := model.Innings{ID: "i1", MatchID: "m1", Number: 1, BattingTeamID: "home", BowlingTeamID: "away"}
		So(s.SaveInnings(ctx, inn), ShouldBeNil)

		Convey("Match and innings round trip", func() {
			got, err := s.Match(ctx, "m1")
			So(err, ShouldBeNil)
			So(got.Tier, ShouldEqual, model.TierDual)
			So(got.MatchingWindow, ShouldEqual, 30*time.Second)

			cfg.Live = false
			So(s.SaveMatch(ctx, cfg), ShouldBeNil)
			got, _ = s.Match(ctx, "m1")
			So(got.Live, ShouldBeFalse)

			list, err := s.MatchInnings(ctx, "m1")
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 1)
			So(list[0].BattingTeamID, ShouldEqual, "home")
		})

		Convey("Unknown records are not found", func() {
			_, err := s.Match(ctx, "nope")
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
			_, err = s.Innings(ctx, "nope")
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
			err = s.AppendGap(ctx, model.Gap{ID: "g", InningsID: "nope", Sequence: 1})
			So(errors.Is(err, ledger.ErrNotFound), ShouldBeTrue)
		})

		Convey("A second innings with the same number conflicts", func() {
			err := s.SaveInnings(ctx, model.Innings{ID: "i2", MatchID: "m1", Number: 1})
			So(errors.Is(err, ledger.ErrConflict), ShouldBeTrue)
		})

		Convey("Balls, wickets and gaps are appended", func() {
			b1 := model.Ball{ID: "b1", MatchID: "m1", InningsID: "i1", OverNumber: 0, BallNumber: 1, Sequence: 1, RunsScored: 4, IsBoundary: true, EventHash: "h1"}
			So(s.AppendBall(ctx, b1, nil), ShouldBeNil)
			So(s.AppendGap(ctx, model.Gap{ID: "g2", InningsID: "i1", OverNumber: 0, BallNumber: 2, Sequence: 2, Reason: "abandoned"}), ShouldBeNil)
			b3 := model.Ball{ID: "b3", MatchID: "m1", InningsID: "i1", OverNumber: 0, BallNumber: 3, Sequence: 3, IsWicket: true, WicketID: "w1"}
			w := &model.Wicket{ID: "w1", BallID: "b3", InningsID: "i1", DismissalType: model.DismissalCaught, PlayerOutID: "bat-1", FielderIDs: []string{"f1"}, WicketNumber: 1}
			So(s.AppendBall(ctx, b3, w), ShouldBeNil)

			balls, err := s.Balls(ctx, "i1")
			So(err, ShouldBeNil)
			So(len(balls), ShouldEqual, 2)
			So(balls[0].EventHash, ShouldEqual, "h1")
			So(balls[1].ID, ShouldEqual, "b3")

			wickets, _ := s.Wickets(ctx, "i1")
			So(len(wickets), ShouldEqual, 1)
			So(wickets[0].FielderIDs, ShouldResemble, []string{"f1"})

			gaps, _ := s.Gaps(ctx, "i1")
			So(len(gaps), ShouldEqual, 1)
			So(gaps[0].Reason, ShouldEqual, "abandoned")

			Convey("A taken slot or sequence conflicts", func() {
				dup := b1
				dup.ID = "b1-other"
				So(errors.Is(s.AppendBall(ctx, dup, nil), ledger.ErrConflict), ShouldBeTrue)

				seq := model.Ball{ID: "b4", InningsID: "i1", OverNumber: 0, BallNumber: 4, Sequence: 3}
				So(errors.Is(s.AppendBall(ctx, seq, nil), ledger.ErrConflict), ShouldBeTrue)

				gap := model.Gap{ID: "g1", InningsID: "i1", OverNumber: 0, BallNumber: 1, Sequence: 9}
				So(errors.Is(s.AppendGap(ctx, gap), ledger.ErrConflict), ShouldBeTrue)

				balls, _ := s.Balls(ctx, "i1")
				So(len(balls), ShouldEqual, 2)
			})
		})
	})
}

func TestLedgerOnSQLite(t *testing.T) {
	Convey("Given a ledger backed by SQLite", t, func() {
		ctx := context.Background()
		s := openTemp(t)
		Reset(func() { _ = s.Close() })

		l := ledger.New(ledger.WithStore(s))
		_, err := l.RegisterMatch(ctx, model.MatchConfig{MatchID: "m1", Tier: model.TierHonor})
		So(err, ShouldBeNil)
		_, err = l.StartInnings(ctx, model.Innings{
			ID: "i1", MatchID: "m1", BattingTeamID: "home", BowlingTeamID: "away",
			StrikerID: "bat-1", NonStrikerID: "bat-2", BowlerID: "bowl-1",
		})
		So(err, ShouldBeNil)

		for ball := 1; ball <= 3; ball++ {
			inn, _ := l.Innings(ctx, "i1")
			_, err := l.Commit(ctx, ledger.CommitRequest{
				InningsID: "i1",
				Claim: model.BallClaim{
					OverNumber: 0, BallNumber: ball,
					BowlerID: inn.BowlerID, StrikerID: inn.StrikerID, NonStrikerID: inn.NonStrikerID,
					RunsScored: 2, ExtraType: model.ExtraNone,
				},
				Provenance: model.ProvenanceHonor, Matching: 1,
			})
			So(err, ShouldBeNil)
		}
		tip, _ := l.LastHash(ctx, "i1")

		Convey("Then a restarted ledger rebuilds the chain from disk", func() {
			fresh := ledger.New(ledger.WithStore(s))
			h, err := fresh.LastHash(ctx, "i1")
			So(err, ShouldBeNil)
			So(h, ShouldEqual, tip)

			next, _ := fresh.NextSlot(ctx, "i1")
			So(next.BallNumber, ShouldEqual, 4)

			report, err := fresh.Verify(ctx, "i1")
			So(err, ShouldBeNil)
			So(report.Valid, ShouldBeTrue)
			So(report.Checked, ShouldEqual, 3)
		})
	})
}
