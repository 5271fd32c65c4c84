package handlers

import (
	"net/http"

	"contentforge/internal/domain"
	"contentforge/internal/templates"
)

// ListTemplates lists the catalog, optionally narrowed by ?kind=.
func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	all := a.Templates.List()
	kind := domain.JobKind(r.URL.Query().Get("kind"))
	if kind == "" {
		a.json(w, http.StatusOK, map[string]any{"templates": all})
		return
	}
	if !kind.Valid() {
		a.error(w, http.StatusBadRequest, "validation", "unknown kind "+string(kind))
		return
	}
	out := make([]templates.Descriptor, 0, len(all))
	for _, d := range all {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	a.json(w, http.StatusOK, map[string]any{"templates": out})
}
