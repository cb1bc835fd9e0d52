package domain

import "errors"

// Error taxonomy for the core. The HTTP edge is the only place these
// map to status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrUnavailable  = errors.New("service unavailable")
	ErrBadID        = errors.New("malformed id")
)
