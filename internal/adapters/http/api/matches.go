package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/crease/internal/domain/model"
)

type registerMatchRequest struct {
	MatchID          string     `json:"match_id"`
	Tier             model.Tier `json:"tier"`
	BallsPerOver     int        `json:"balls_per_over,omitempty"`
	WicketsToFall    int        `json:"wickets_to_fall,omitempty"`
	MaxOvers         int        `json:"max_overs,omitempty"`
	MatchingWindowMS int        `json:"matching_window_ms,omitempty"`
	HomeTeamID       string     `json:"home_team_id,omitempty"`
	AwayTeamID       string     `json:"away_team_id,omitempty"`
}

// handleRegisterMatch handles POST /v1/matches.
func (s *Server) handleRegisterMatch(w http.ResponseWriter, r *http.Request) {
	if _, err := official(r, model.RoleUmpire); err != nil {
		s.fail(w, r, err)
		return
	}
	var req registerMatchRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cfg, err := s.deps.RegisterMatch(r.Context(), model.MatchConfig{
		MatchID:        req.MatchID,
		Tier:           req.Tier,
		BallsPerOver:   req.BallsPerOver,
		WicketsToFall:  req.WicketsToFall,
		MaxOvers:       req.MaxOvers,
		MatchingWindow: time.Duration(req.MatchingWindowMS) * time.Millisecond,
		HomeTeamID:     req.HomeTeamID,
		AwayTeamID:     req.AwayTeamID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// handleEndMatch handles POST /v1/matches/{matchID}/end.
func (s *Server) handleEndMatch(w http.ResponseWriter, r *http.Request) {
	if _, err := official(r, model.RoleUmpire); err != nil {
		s.fail(w, r, err)
		return
	}
	cfg, err := s.deps.EndMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type startInningsRequest struct {
	InningsID     string `json:"innings_id,omitempty"`
	BattingTeamID string `json:"batting_team_id"`
	BowlingTeamID string `json:"bowling_team_id"`
	Target        int    `json:"target,omitempty"`
	StrikerID     string `json:"striker_id"`
	NonStrikerID  string `json:"non_striker_id"`
	BowlerID      string `json:"bowler_id"`
}

// handleStartInnings handles POST /v1/matches/{matchID}/innings.
func (s *Server) handleStartInnings(w http.ResponseWriter, r *http.Request) {
	if _, err := official(r, model.RoleUmpire); err != nil {
		s.fail(w, r, err)
		return
	}
	var req startInningsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	inn, err := s.deps.StartInnings(r.Context(), model.Innings{
		ID:            req.InningsID,
		MatchID:       chi.URLParam(r, "matchID"),
		BattingTeamID: req.BattingTeamID,
		BowlingTeamID: req.BowlingTeamID,
		Target:        req.Target,
		StrikerID:     req.StrikerID,
		NonStrikerID:  req.NonStrikerID,
		BowlerID:      req.BowlerID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inn)
}

type completeInningsRequest struct {
	Reason model.CompletionReason `json:"reason"`
}

// handleCompleteInnings handles POST /v1/innings/{inningsID}/complete.
func (s *Server) handleCompleteInnings(w http.ResponseWriter, r *http.Request) {
	if _, err := official(r, model.RoleUmpire); err != nil {
		s.fail(w, r, err)
		return
	}
	req := completeInningsRequest{Reason: model.CompletionDeclared}
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	inn, err := s.deps.CompleteInnings(r.Context(), chi.URLParam(r, "inningsID"), req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inn)
}
