package api

import (
	"errors"
	"net/http"

	"github.com/okian/crease/internal/adapters/http/auth"
	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
)

type errorKind struct {
	target error
	status int
	code   string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{model.ErrInvalidClaim, http.StatusBadRequest, "validation_error"},
	{ledger.ErrValidation, http.StatusBadRequest, "validation_error"},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{consensus.ErrForbidden, http.StatusForbidden, "forbidden"},
	{dispute.ErrForbidden, http.StatusForbidden, "forbidden"},
	{ledger.ErrUnknownMatch, http.StatusNotFound, "unknown_match"},
	{ledger.ErrNotFound, http.StatusNotFound, "not_found"},
	{consensus.ErrNotFound, http.StatusNotFound, "not_found"},
	{dispute.ErrNotFound, http.StatusNotFound, "not_found"},
	{ledger.ErrSequence, http.StatusConflict, "sequence_error"},
	{consensus.ErrConsensusTimeout, http.StatusConflict, "consensus_timeout"},
	{ledger.ErrConflict, http.StatusConflict, "conflict"},
	{ledger.ErrInningsComplete, http.StatusConflict, "innings_complete"},
	{ledger.ErrInningsInProgress, http.StatusConflict, "innings_in_progress"},
	{ledger.ErrMatchEnded, http.StatusConflict, "match_ended"},
	{dispute.ErrClosed, http.StatusConflict, "dispute_closed"},
	{dispute.ErrUnresolved, http.StatusUnprocessableEntity, "unresolved"},
}

// statusOf maps a domain error onto an HTTP status and error code.
func statusOf(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
