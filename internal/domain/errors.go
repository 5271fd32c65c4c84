package domain

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrStructuring         = errors.New("structuring error")
	ErrConflict            = errors.New("conflict")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrNotFound            = errors.New("not found")

	// ErrContentPolicy marks a provider refusal. It is never retried.
	ErrContentPolicy     = errors.New("content policy rejection")
	ErrJobTimeout        = errors.New("job timed out")
	ErrCancelUnsupported = errors.New("backend does not support cancellation")
)
