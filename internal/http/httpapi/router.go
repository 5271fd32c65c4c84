package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"contentforge/internal/http/handlers"
	"contentforge/internal/middleware"
)

type Options struct {
	RateLimitPerMin int
	CORSOrigins     []string
	// StaticDir serves generated assets under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}

		r.Route("/v1/research", func(r chi.Router) {
			r.Post("/", app.StartResearch)
			r.Get("/{projectID}", app.ResearchStatus)
			r.Post("/{projectID}/reprocess", app.ReprocessResearch)
		})
		r.Get("/v1/projects/{projectID}", app.Project)

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.SubmitGeneration)
			r.Get("/{jobID}", app.PollGeneration)
			r.Post("/{jobID}/cancel", app.CancelGeneration)
		})
		r.Get("/v1/templates", app.ListTemplates)
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
