package util

import "errors"

// Sentinel error kinds. Callers match with errors.Is; wrapping sites attach
// the operation context via fmt.Errorf("...: %w", ErrX).
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConfigInvalid     = errors.New("config invalid")
	ErrAuthFailed        = errors.New("auth failed")
	ErrForbidden         = errors.New("forbidden")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUpstream          = errors.New("upstream error")
	ErrTimeout           = errors.New("timeout")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrSSRFBlocked       = errors.New("SSRF blocked")
	ErrInternal          = errors.New("internal error")
)
