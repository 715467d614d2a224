package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleInningsState handles GET /v1/innings/{inningsID}/state.
func (s *Server) handleInningsState(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.InningsState(r.Context(), chi.URLParam(r, "inningsID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleBalls handles GET /v1/innings/{inningsID}/balls.
func (s *Server) handleBalls(w http.ResponseWriter, r *http.Request) {
	log, err := s.deps.Log(r.Context(), chi.URLParam(r, "inningsID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// handleVerify handles GET /v1/innings/{inningsID}/verify.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Verify(r.Context(), chi.URLParam(r, "inningsID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleScorecard handles GET /v1/matches/{matchID}/scorecard.
func (s *Server) handleScorecard(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.MatchState(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
