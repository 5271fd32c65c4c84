package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"contentforge/internal/domain"
	"contentforge/internal/generation"
	"contentforge/internal/infra"
	"contentforge/internal/research"
	"contentforge/internal/templates"
)

type fakeResearch struct {
	startErr  error
	started   domain.Identity
	depth     domain.Depth
	statusErr error
}

func (f *fakeResearch) StartResearch(_ context.Context, id domain.Identity, depth domain.Depth) (research.Run, error) {
	f.started, f.depth = id, depth
	if f.startErr != nil {
		return research.Run{}, f.startErr
	}
	return research.Run{ProjectID: "p1", RunID: "r1", Status: domain.ResearchProcessing}, nil
}

func (f *fakeResearch) RunResearch(_ context.Context, id domain.Identity, depth domain.Depth) (research.Status, error) {
	f.started, f.depth = id, depth
	return research.Status{ProjectID: "p1", RunID: "r1", Status: domain.ResearchCompleted}, nil
}

func (f *fakeResearch) GetResearchStatus(_ context.Context, projectID string) (research.Status, error) {
	if f.statusErr != nil {
		return research.Status{}, f.statusErr
	}
	return research.Status{ProjectID: projectID, Status: domain.ResearchPending}, nil
}

func (f *fakeResearch) Reprocess(_ context.Context, projectID string) (research.Run, error) {
	return research.Run{}, fmt.Errorf("%w: project %s is not failed", domain.ErrConflict, projectID)
}

func (f *fakeResearch) Project(_ context.Context, projectID string) (*domain.ProjectRecord, error) {
	return &domain.ProjectRecord{ID: projectID, Status: domain.ResearchCompleted}, nil
}

type fakeGeneration struct {
	submitErr error
	status    domain.JobStatus
	kind      domain.JobKind
	input     generation.Input
	cancelled bool
}

func (f *fakeGeneration) Submit(_ context.Context, projectID string, kind domain.JobKind, in generation.Input) (*domain.GenerationJob, error) {
	f.kind, f.input = kind, in
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &domain.GenerationJob{ID: "j1", ProjectID: projectID, Kind: kind, Status: f.status}, nil
}

func (f *fakeGeneration) Poll(_ context.Context, jobID string) (*domain.GenerationJob, error) {
	if jobID != "j1" {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	status := domain.JobRunning
	if f.cancelled {
		status = domain.JobCancelled
	}
	return &domain.GenerationJob{ID: jobID, Status: status}, nil
}

func (f *fakeGeneration) Cancel(_ context.Context, jobID string) (bool, error) {
	if jobID != "j1" {
		return false, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	f.cancelled = true
	return true, nil
}

func newTestRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/research", app.StartResearch)
	r.Get("/v1/research/{projectID}", app.ResearchStatus)
	r.Post("/v1/research/{projectID}/reprocess", app.ReprocessResearch)
	r.Get("/v1/projects/{projectID}", app.Project)
	r.Post("/v1/generations", app.SubmitGeneration)
	r.Get("/v1/generations/{jobID}", app.PollGeneration)
	r.Post("/v1/generations/{jobID}/cancel", app.CancelGeneration)
	r.Get("/v1/templates", app.ListTemplates)
	r.Get("/v1/healthz", app.Health)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestStartResearchAccepted(t *testing.T) {
	rs := &fakeResearch{}
	h := newTestRouter(&App{Research: rs, Logger: infra.NopLogger()})

	rec := do(t, h, http.MethodPost, "/v1/research", `{"name":"Uniswap","url":"https://uniswap.org","depth":"shallow"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if rs.started.URL != "https://uniswap.org" || rs.depth != domain.DepthShallow {
		t.Fatalf("started = %+v depth %s", rs.started, rs.depth)
	}
	var run research.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil || run.RunID != "r1" {
		t.Fatalf("run = %+v, %v", run, err)
	}
}

func TestStartResearchWait(t *testing.T) {
	h := newTestRouter(&App{Research: &fakeResearch{}, Logger: infra.NopLogger()})
	rec := do(t, h, http.MethodPost, "/v1/research", `{"url":"https://uniswap.org","wait":true}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"completed"`) {
		t.Fatalf("response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStartResearchRejectsBadInput(t *testing.T) {
	h := newTestRouter(&App{Research: &fakeResearch{}, Logger: infra.NopLogger()})
	cases := []struct {
		name string
		body string
	}{
		{"malformed", `{"url":`},
		{"unknown field", `{"url":"https://x.io","colour":"red"}`},
		{"bad depth", `{"url":"https://x.io","depth":"medium"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/research", tc.body)
			if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation" {
				t.Fatalf("response = %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: gone", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: busy", domain.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: %w", domain.ErrPreconditionFailed, domain.ErrNotFound), http.StatusPreconditionFailed},
		{fmt.Errorf("%w: junk", domain.ErrStructuring), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: down", domain.ErrUpstreamUnavailable), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newTestRouter(&App{Research: &fakeResearch{statusErr: tc.err}, Logger: infra.NopLogger()})
		rec := do(t, h, http.MethodGet, "/v1/research/p1", "")
		if rec.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	h := newTestRouter(&App{Research: &fakeResearch{statusErr: errors.New("pgx: secret dsn")}, Logger: infra.NopLogger()})
	rec := do(t, h, http.MethodGet, "/v1/research/p1", "")
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("body leaks internal error: %s", rec.Body.String())
	}
}

func TestReprocessConflict(t *testing.T) {
	h := newTestRouter(&App{Research: &fakeResearch{}, Logger: infra.NopLogger()})
	rec := do(t, h, http.MethodPost, "/v1/research/p1/reprocess", "")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "conflict" {
		t.Fatalf("response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitGenerationStatusCodes(t *testing.T) {
	cases := []struct {
		status domain.JobStatus
		want   int
	}{
		{domain.JobCompleted, http.StatusCreated},
		{domain.JobRunning, http.StatusAccepted},
	}
	for _, tc := range cases {
		gs := &fakeGeneration{status: tc.status}
		h := newTestRouter(&App{Generation: gs, Logger: infra.NopLogger()})
		rec := do(t, h, http.MethodPost, "/v1/generations", `{"project_id":"p1","kind":"Image","template":"hero_banner","variables":{"cta":"Join"}}`)
		if rec.Code != tc.want {
			t.Fatalf("status %s: code = %d, want %d", tc.status, rec.Code, tc.want)
		}
		if gs.kind != domain.KindImage || gs.input.Template != "hero_banner" || gs.input.Variables["cta"] != "Join" {
			t.Fatalf("submitted kind %s input %+v", gs.kind, gs.input)
		}
	}
}

func TestSubmitGenerationValidation(t *testing.T) {
	h := newTestRouter(&App{Generation: &fakeGeneration{}, Logger: infra.NopLogger()})
	for _, body := range []string{
		`{"project_id":"p1","kind":"audio","prompt":"x"}`,
		`{"kind":"text","prompt":"x"}`,
	} {
		rec := do(t, h, http.MethodPost, "/v1/generations", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: code = %d, want 400", body, rec.Code)
		}
	}
}

func TestSubmitGenerationPrecondition(t *testing.T) {
	gs := &fakeGeneration{submitErr: fmt.Errorf("%w: research is pending", domain.ErrPreconditionFailed)}
	h := newTestRouter(&App{Generation: gs, Logger: infra.NopLogger()})
	rec := do(t, h, http.MethodPost, "/v1/generations", `{"project_id":"p1","kind":"video","template":"explainer"}`)
	if rec.Code != http.StatusPreconditionFailed || errorCode(t, rec) != "precondition_failed" {
		t.Fatalf("response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCancelGeneration(t *testing.T) {
	gs := &fakeGeneration{}
	h := newTestRouter(&App{Generation: gs, Logger: infra.NopLogger()})

	rec := do(t, h, http.MethodPost, "/v1/generations/j1/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body cancelResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Cancelled || body.Job.Status != domain.JobCancelled {
		t.Fatalf("body = %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/v1/generations/missing/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job code = %d, want 404", rec.Code)
	}
}

func TestListTemplatesFilter(t *testing.T) {
	h := newTestRouter(&App{Templates: templates.NewCatalog(nil), Logger: infra.NopLogger()})
	rec := do(t, h, http.MethodGet, "/v1/templates?kind=video", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body struct {
		Templates []templates.Descriptor `json:"templates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Templates) == 0 {
		t.Fatalf("no video templates listed")
	}
	for _, d := range body.Templates {
		if d.Kind != domain.KindVideo {
			t.Fatalf("template %s has kind %s", d.Name, d.Kind)
		}
	}
	if rec := do(t, h, http.MethodGet, "/v1/templates?kind=audio", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind code = %d", rec.Code)
	}
}

func TestHealthReadiness(t *testing.T) {
	app := &App{Logger: infra.NopLogger()}
	h := newTestRouter(app)
	if rec := do(t, h, http.MethodGet, "/v1/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthy code = %d", rec.Code)
	}
	app.Ready = func(context.Context) error { return errors.New("db down") }
	if rec := do(t, h, http.MethodGet, "/v1/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded code = %d", rec.Code)
	}
}
