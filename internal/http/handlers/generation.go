package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"contentforge/internal/domain"
	"contentforge/internal/generation"
)

type generationRequest struct {
	ProjectID   string            `json:"project_id"`
	Kind        string            `json:"kind"`
	Template    string            `json:"template"`
	Prompt      string            `json:"prompt"`
	Variables   map[string]string `json:"variables"`
	AspectRatio string            `json:"aspect_ratio"`
}

type cancelResponse struct {
	Cancelled bool                  `json:"cancelled"`
	Job       *domain.GenerationJob `json:"job"`
}

// SubmitGeneration answers 201 for a job that settled inline and 202 for one
// still running.
func (a *App) SubmitGeneration(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	kind := domain.JobKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.Valid() {
		a.fail(w, r, fmt.Errorf("%w: unknown kind %q", domain.ErrValidation, req.Kind))
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		a.fail(w, r, fmt.Errorf("%w: project_id is required", domain.ErrValidation))
		return
	}
	job, err := a.Generation.Submit(r.Context(), req.ProjectID, kind, generation.Input{
		Template:    req.Template,
		Prompt:      req.Prompt,
		Variables:   req.Variables,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusAccepted
	if job.Status.Terminal() {
		code = http.StatusCreated
	}
	a.json(w, code, job)
}

func (a *App) PollGeneration(w http.ResponseWriter, r *http.Request) {
	job, err := a.Generation.Poll(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// CancelGeneration reports whether the job was cancelled together with its
// current state. Cancelling a settled job is not an error.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	cancelled, err := a.Generation.Cancel(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := a.Generation.Poll(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, cancelResponse{Cancelled: cancelled, Job: job})
}
