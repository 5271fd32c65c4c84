// Package generation owns the lifecycle of content generation jobs: dispatch
// to a backend, polling of asynchronous work, cancellation and timeouts.
package generation

import (
	"context"

	"contentforge/internal/domain"
)

// Request is what a backend receives for one dispatch.
type Request struct {
	JobID       string
	ProjectID   string
	Kind        domain.JobKind
	Prompt      string
	AspectRatio string
	Duration    int
}

// Dispatch is the result of Generate: either a finished output or a handle
// to poll later.
type Dispatch struct {
	Output *domain.JobOutput
	Handle string
}

// Progress is the backend view of asynchronous work.
type Progress struct {
	Done   bool
	Output *domain.JobOutput
	// Err is set when the backend finished without output.
	Err       error
	Cancelled bool
}

// Backend generates content of one kind. Errors must be flagged with
// retry.Transient or retry.Permanent.
type Backend interface {
	Kind() domain.JobKind
	Name() string
	Generate(ctx context.Context, req Request) (Dispatch, error)
}

// Poller is implemented by backends that hand out handles.
type Poller interface {
	Status(ctx context.Context, handle string) (Progress, error)
}

// Canceller is implemented by backends that can abort work in flight.
type Canceller interface {
	Cancel(ctx context.Context, handle string) error
}
