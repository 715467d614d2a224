package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrValidation        = errors.New("validation error")
	ErrSequence          = errors.New("sequence error")
	ErrConflict          = errors.New("commit conflict")
	ErrNotFound          = errors.New("not found")
	ErrUnknownMatch      = errors.New("unknown match")
	ErrMatchEnded        = errors.New("match is not live")
	ErrInningsComplete   = errors.New("innings already completed")
	ErrInningsInProgress = errors.New("another innings is in progress")
)
