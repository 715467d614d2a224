package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/model"
)

// handleListDisputes handles GET /v1/matches/{matchID}/disputes?status=.
func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	status := model.DisputeStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.DisputePending, model.DisputeResolved, model.DisputeAbandoned:
	default:
		s.fail(w, r, fmt.Errorf("%w: unknown status %q", ErrBadRequest, status))
		return
	}
	list, err := s.deps.Disputes(r.Context(), chi.URLParam(r, "matchID"), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": list})
}

// handleGetDispute handles GET /v1/disputes/{disputeID}.
func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Dispute(r.Context(), chi.URLParam(r, "disputeID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type resolveRequest struct {
	Claim   *model.BallClaim `json:"claim,omitempty"`
	Abandon bool             `json:"abandon,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// handleResolve handles POST /v1/disputes/{disputeID}/resolve. The deciding
// official is the authenticated actor.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Resolve(r.Context(), chi.URLParam(r, "disputeID"), dispute.Decision{
		ActorID: a.ID,
		Role:    a.Role,
		TeamID:  a.TeamID,
		Claim:   req.Claim,
		Abandon: req.Abandon,
		Reason:  req.Reason,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
