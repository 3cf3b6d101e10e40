package timebank

import "errors"

// Sentinel errors. Callers classify failures with errors.Is; the HTTP layer
// maps each to a status code.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)
