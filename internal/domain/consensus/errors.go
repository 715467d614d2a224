package consensus

import "errors"

var (
	// ErrForbidden is returned when the submitting role may not score.
	ErrForbidden = errors.New("role may not submit claims")
	// ErrNotFound is returned for an unknown or already settled claim.
	ErrNotFound = errors.New("claim not found")
	// ErrConsensusTimeout marks a slot whose matching window expired.
	ErrConsensusTimeout = errors.New("matching window expired")
	// ErrOutOfRange is returned for a claim too far ahead of the ledger.
	ErrOutOfRange = errors.New("slot out of range")
)
