package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"contentforge/internal/domain"
	"contentforge/internal/generation"
	"contentforge/internal/infra"
	"contentforge/internal/research"
	"contentforge/internal/templates"
)

const maxBodyBytes = 1 << 20

type ResearchService interface {
	StartResearch(ctx context.Context, identity domain.Identity, depth domain.Depth) (research.Run, error)
	RunResearch(ctx context.Context, identity domain.Identity, depth domain.Depth) (research.Status, error)
	GetResearchStatus(ctx context.Context, projectID string) (research.Status, error)
	Reprocess(ctx context.Context, projectID string) (research.Run, error)
	Project(ctx context.Context, projectID string) (*domain.ProjectRecord, error)
}

type GenerationService interface {
	Submit(ctx context.Context, projectID string, kind domain.JobKind, in generation.Input) (*domain.GenerationJob, error)
	Poll(ctx context.Context, jobID string) (*domain.GenerationJob, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
}

type TemplateLister interface {
	List() []templates.Descriptor
}

type App struct {
	Research   ResearchService
	Generation GenerationService
	Templates  TemplateLister
	Logger     infra.Logger

	// DefaultDepth applies when a research request names no depth.
	DefaultDepth domain.Depth
	// Ready is consulted by the health check when set.
	Ready        func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// fail maps a service error onto the HTTP error taxonomy. Precondition
// failures are checked first because they may wrap ErrNotFound.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("http: request failed")
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	a.error(w, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "precondition_failed"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrStructuring):
		return http.StatusUnprocessableEntity, "structuring"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decode reads a single JSON object from the request body.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", domain.ErrValidation, err)
	}
	return nil
}
