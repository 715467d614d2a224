package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/crease/internal/adapters/http/api"
	"github.com/okian/crease/internal/adapters/http/auth"
	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/integrity"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/projection"
)

type fakeDeps struct {
	registered []model.MatchConfig
	submitted  []consensus.Submission
	decisions  []dispute.Decision
	withdrawn  []string
	listStatus model.DisputeStatus

	submitResult consensus.Result
	err          error
}

func (f *fakeDeps) RegisterMatch(_ context.Context, cfg model.MatchConfig) (model.MatchConfig, error) {
	if f.err != nil {
		return model.MatchConfig{}, f.err
	}
	f.registered = append(f.registered, cfg)
	return cfg, nil
}

func (f *fakeDeps) EndMatch(_ context.Context, matchID string) (model.MatchConfig, error) {
	return model.MatchConfig{MatchID: matchID}, f.err
}

func (f *fakeDeps) StartInnings(_ context.Context, inn model.Innings) (model.Innings, error) {
	inn.Number = 1
	return inn, f.err
}

func (f *fakeDeps) CompleteInnings(_ context.Context, inningsID string, reason model.CompletionReason) (model.Innings, error) {
	return model.Innings{ID: inningsID, IsCompleted: true, CompletionReason: reason}, f.err
}

func (f *fakeDeps) Submit(_ context.Context, sub consensus.Submission) (consensus.Result, error) {
	if f.err != nil {
		return consensus.Result{}, f.err
	}
	f.submitted = append(f.submitted, sub)
	return f.submitResult, nil
}

func (f *fakeDeps) Withdraw(_ context.Context, matchID, eventID, scorerID string) (model.ScoringEvent, error) {
	if f.err != nil {
		return model.ScoringEvent{}, f.err
	}
	f.withdrawn = append(f.withdrawn, matchID+"/"+eventID+"/"+scorerID)
	return model.ScoringEvent{ID: eventID, MatchID: matchID}, nil
}

func (f *fakeDeps) Pending(_ context.Context, inningsID string) ([]consensus.SlotView, error) {
	return []consensus.SlotView{{Slot: model.Slot{InningsID: inningsID}}}, f.err
}

func (f *fakeDeps) InningsState(_ context.Context, inningsID string) (projection.InningsState, error) {
	if f.err != nil {
		return projection.InningsState{}, f.err
	}
	return projection.InningsState{InningsID: inningsID, Runs: 42, Wickets: 1, Overs: "5.3"}, nil
}

func (f *fakeDeps) MatchState(_ context.Context, matchID string) (projection.MatchState, error) {
	if f.err != nil {
		return projection.MatchState{}, f.err
	}
	return projection.MatchState{MatchID: matchID, Tier: model.TierDual, Live: true}, nil
}

func (f *fakeDeps) Log(_ context.Context, inningsID string) (ledger.Log, error) {
	return ledger.Log{Innings: model.Innings{ID: inningsID}}, f.err
}

func (f *fakeDeps) Verify(_ context.Context, inningsID string) (integrity.Report, error) {
	return integrity.Report{InningsID: inningsID, Checked: 3, Valid: true}, f.err
}

func (f *fakeDeps) Disputes(_ context.Context, matchID string, status model.DisputeStatus) ([]model.Dispute, error) {
	f.listStatus = status
	return []model.Dispute{{ID: "d1", MatchID: matchID, Status: model.DisputePending}}, f.err
}

func (f *fakeDeps) Dispute(_ context.Context, id string) (dispute.View, error) {
	if f.err != nil {
		return dispute.View{}, f.err
	}
	return dispute.View{Dispute: model.Dispute{ID: id}}, nil
}

func (f *fakeDeps) Resolve(_ context.Context, id string, dec dispute.Decision) (dispute.Resolution, error) {
	if f.err != nil {
		return dispute.Resolution{}, f.err
	}
	f.decisions = append(f.decisions, dec)
	return dispute.Resolution{Dispute: model.Dispute{ID: id, Status: model.DisputeResolved}}, nil
}

type fakeStats struct{}

func (fakeStats) GetStats() map[string]any { return map[string]any{"started": true} }

type fakeSpectator struct{ served []string }

func (f *fakeSpectator) Serve(w http.ResponseWriter, _ *http.Request, matchID string) {
	f.served = append(f.served, matchID)
	w.WriteHeader(http.StatusNoContent)
}

type call struct {
	method, path, body string
	role, id, team     string
	bearer             string
}

func do(h http.Handler, c call) *httptest.ResponseRecorder {
	var body *strings.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.id != "" {
		req.Header.Set(auth.HeaderActorID, c.id)
		req.Header.Set(auth.HeaderActorRole, c.role)
		req.Header.Set(auth.HeaderActorTeam, c.team)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func TestServerLifecycleRoutes(t *testing.T) {
	Convey("Given a server in development auth mode", t, func() {
		deps := &fakeDeps{}
		h := api.NewServer(deps, fakeStats{}).Handler()

		Convey("An umpire can register a match", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches",
				body: `{"match_id":"m1","tier":"dual","max_overs":20,"matching_window_ms":1500}`,
				id:   "u1", role: "umpire"})
			So(rec.Code, ShouldEqual, http.StatusCreated)
			So(deps.registered, ShouldHaveLength, 1)
			So(deps.registered[0].Tier, ShouldEqual, model.TierDual)
			So(deps.registered[0].MatchingWindow, ShouldEqual, 1500*time.Millisecond)
		})

		Convey("A scorer cannot register a match", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches",
				body: `{"match_id":"m1","tier":"dual"}`, id: "s1", role: "scorer"})
			So(rec.Code, ShouldEqual, http.StatusForbidden)
			So(decodeBody(rec)["code"], ShouldEqual, "forbidden")
		})

		Convey("Anonymous lifecycle calls are unauthorized", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches/m1/end"})
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Unknown body fields are rejected", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches",
				body: `{"match_id":"m1","bogus":1}`, id: "u1", role: "umpire"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Innings start uses the path match id", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches/m1/innings",
				body: `{"batting_team_id":"A","bowling_team_id":"B","striker_id":"p1","non_striker_id":"p2","bowler_id":"b1"}`,
				id:   "u1", role: "Umpire"})
			So(rec.Code, ShouldEqual, http.StatusCreated)
			So(decodeBody(rec)["match_id"], ShouldEqual, "m1")
		})

		Convey("Completing an innings defaults to declared", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/innings/i1/complete", id: "u1", role: "umpire"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(rec)["completion_reason"], ShouldEqual, "declared")
		})

		Convey("Domain errors map to status codes", func() {
			deps.err = fmt.Errorf("wrap: %w", ledger.ErrMatchEnded)
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches/m1/end", id: "u1", role: "umpire"})
			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(decodeBody(rec)["code"], ShouldEqual, "match_ended")
		})
	})
}

func TestServerClaims(t *testing.T) {
	Convey("Given a server in development auth mode", t, func() {
		deps := &fakeDeps{}
		h := api.NewServer(deps, fakeStats{}).Handler()
		body := `{"submission_id":"sub-1","claim":{"over_number":0,"ball_number":1,"bowler_id":"b1","striker_id":"p1","non_striker_id":"p2","runs_scored":4,"extra_type":"none","is_boundary":true}}`

		Convey("The scorer identity comes from the actor", func() {
			deps.submitResult = consensus.Result{Status: consensus.StatusPending}
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches/m1/claims", body: body,
				id: "s1", role: "scorer", team: "A"})
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(deps.submitted, ShouldHaveLength, 1)
			sub := deps.submitted[0]
			So(sub.ScorerID, ShouldEqual, "s1")
			So(sub.Role, ShouldEqual, model.RoleScorer)
			So(sub.TeamID, ShouldEqual, "A")
			So(sub.MatchID, ShouldEqual, "m1")
			So(sub.SubmissionID, ShouldEqual, "sub-1")
			So(sub.Claim.RunsScored, ShouldEqual, 4)
		})

		Convey("A committed claim answers 200", func() {
			deps.submitResult = consensus.Result{Status: consensus.StatusCommitted, EventID: "e1"}
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches/m1/claims", body: body, id: "s1", role: "scorer"})
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("A claim without identity is unauthorized", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches/m1/claims", body: body})
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("An invalid claim is a bad request", func() {
			deps.err = fmt.Errorf("%w: runs out of range", model.ErrInvalidClaim)
			rec := do(h, call{method: http.MethodPost, path: "/v1/matches/m1/claims", body: body, id: "s1", role: "scorer"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(rec)["code"], ShouldEqual, "validation_error")
		})

		Convey("Withdraw passes the actor as scorer", func() {
			rec := do(h, call{method: http.MethodDelete, path: "/v1/matches/m1/claims/e9", id: "s2", role: "scorer"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.withdrawn, ShouldResemble, []string{"m1/e9/s2"})
		})

		Convey("Withdrawing someone else's claim is forbidden", func() {
			deps.err = consensus.ErrForbidden
			rec := do(h, call{method: http.MethodDelete, path: "/v1/matches/m1/claims/e9", id: "s2", role: "scorer"})
			So(rec.Code, ShouldEqual, http.StatusForbidden)
		})
	})
}

func TestServerReads(t *testing.T) {
	Convey("Given a server with a spectator", t, func() {
		deps := &fakeDeps{}
		watcher := &fakeSpectator{}
		h := api.NewServer(deps, fakeStats{}, api.WithSpectator(watcher)).Handler()

		Convey("Reads need no identity", func() {
			rec := do(h, call{method: http.MethodGet, path: "/v1/innings/i1/state"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			out := decodeBody(rec)
			So(out["runs"], ShouldEqual, float64(42))
			So(out["overs"], ShouldEqual, "5.3")

			rec = do(h, call{method: http.MethodGet, path: "/v1/innings/i1/verify"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(rec)["valid"], ShouldEqual, true)

			rec = do(h, call{method: http.MethodGet, path: "/v1/matches/m1/scorecard"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(rec)["tier"], ShouldEqual, "dual")

			rec = do(h, call{method: http.MethodGet, path: "/v1/innings/i1/balls"})
			So(rec.Code, ShouldEqual, http.StatusOK)

			rec = do(h, call{method: http.MethodGet, path: "/v1/innings/i1/pending"})
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Unknown innings is not found", func() {
			deps.err = ledger.ErrNotFound
			rec := do(h, call{method: http.MethodGet, path: "/v1/innings/nope/state"})
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Dispute listing validates the status filter", func() {
			rec := do(h, call{method: http.MethodGet, path: "/v1/matches/m1/disputes?status=pending"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.listStatus, ShouldEqual, model.DisputePending)

			rec = do(h, call{method: http.MethodGet, path: "/v1/matches/m1/disputes?status=weird"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("The live route hands off to the spectator", func() {
			rec := do(h, call{method: http.MethodGet, path: "/v1/matches/m1/live"})
			So(rec.Code, ShouldEqual, http.StatusNoContent)
			So(watcher.served, ShouldResemble, []string{"m1"})
		})

		Convey("The live route rejects unknown matches", func() {
			deps.err = ledger.ErrUnknownMatch
			rec := do(h, call{method: http.MethodGet, path: "/v1/matches/zz/live"})
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(watcher.served, ShouldBeEmpty)
		})

		Convey("Stats and health are served", func() {
			rec := do(h, call{method: http.MethodGet, path: "/stats"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(rec)["started"], ShouldEqual, true)

			rec = do(h, call{method: http.MethodGet, path: "/healthz"})
			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestServerResolve(t *testing.T) {
	Convey("Given a server with a signing secret", t, func() {
		deps := &fakeDeps{}
		authn := auth.New("test-secret", "crease")
		h := api.NewServer(deps, fakeStats{}, api.WithAuthenticator(authn)).Handler()
		body := `{"claim":{"over_number":0,"ball_number":2,"bowler_id":"b1","striker_id":"p1","non_striker_id":"p2","runs_scored":1,"extra_type":"none"}}`

		Convey("The umpire in the token decides", func() {
			tok, err := authn.Issue(auth.Actor{ID: "u1", Role: model.RoleUmpire}, time.Minute)
			So(err, ShouldBeNil)
			rec := do(h, call{method: http.MethodPost, path: "/v1/disputes/d1/resolve", body: body, bearer: tok})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.decisions, ShouldHaveLength, 1)
			So(deps.decisions[0].ActorID, ShouldEqual, "u1")
			So(deps.decisions[0].Role, ShouldEqual, model.RoleUmpire)
			So(deps.decisions[0].Claim, ShouldNotBeNil)
		})

		Convey("Development headers are ignored", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/disputes/d1/resolve", body: body, id: "u1", role: "umpire"})
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("A forged token is rejected", func() {
			rec := do(h, call{method: http.MethodPost, path: "/v1/disputes/d1/resolve", body: body, bearer: "not.a.token"})
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			So(deps.decisions, ShouldBeEmpty)
		})

		Convey("Positions on behalf of other officials are rejected", func() {
			tok, _ := authn.Issue(auth.Actor{ID: "s1", Role: model.RoleScorer}, time.Minute)
			forged := `{"votes":[{"actor_id":"fake-ump","role":"umpire","claim":{"over_number":0,"ball_number":2,"bowler_id":"b1","striker_id":"p1","non_striker_id":"p2","runs_scored":6,"extra_type":"none"}}]}`
			rec := do(h, call{method: http.MethodPost, path: "/v1/disputes/d1/resolve", body: forged, bearer: tok})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.decisions, ShouldBeEmpty)
		})

		Convey("An unresolvable attempt is unprocessable", func() {
			deps.err = dispute.ErrUnresolved
			tok, _ := authn.Issue(auth.Actor{ID: "s1", Role: model.RoleScorer}, time.Minute)
			rec := do(h, call{method: http.MethodPost, path: "/v1/disputes/d1/resolve", body: `{}`, bearer: tok})
			So(rec.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})
	})
}
