package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/model"
)

type submitClaimRequest struct {
	SubmissionID string          `json:"submission_id,omitempty"`
	InningsID    string          `json:"innings_id,omitempty"`
	Claim        model.BallClaim `json:"claim"`
}

// handleSubmitClaim handles POST /v1/matches/{matchID}/claims. A committed
// claim answers 200; a claim still waiting or disputed answers 202.
func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req submitClaimRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Submit(r.Context(), consensus.Submission{
		SubmissionID: req.SubmissionID,
		MatchID:      chi.URLParam(r, "matchID"),
		InningsID:    req.InningsID,
		ScorerID:     a.ID,
		Role:         a.Role,
		TeamID:       a.TeamID,
		Claim:        req.Claim,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.Status == consensus.StatusCommitted {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// handleWithdrawClaim handles DELETE /v1/matches/{matchID}/claims/{claimID}.
// Only the scorer who made the claim may withdraw it.
func (s *Server) handleWithdrawClaim(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ev, err := s.deps.Withdraw(r.Context(), chi.URLParam(r, "matchID"), chi.URLParam(r, "claimID"), a.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handlePending handles GET /v1/innings/{inningsID}/pending.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	slots, err := s.deps.Pending(r.Context(), chi.URLParam(r, "inningsID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}
