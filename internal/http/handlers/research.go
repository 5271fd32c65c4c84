package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"contentforge/internal/domain"
	"contentforge/internal/research"
)

type researchRequest struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	ContractAddress string `json:"contract_address"`
	Depth           string `json:"depth"`
	// Wait runs the research inline and answers with the settled status.
	Wait bool `json:"wait"`
}

// StartResearch accepts a project identity and answers 202 with the run.
func (a *App) StartResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	depth, err := research.ParseDepth(req.Depth)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Depth) == "" && a.DefaultDepth != "" {
		depth = a.DefaultDepth
	}
	identity := domain.Identity{Name: req.Name, URL: req.URL, ContractAddress: req.ContractAddress}

	if req.Wait {
		status, err := a.Research.RunResearch(r.Context(), identity, depth)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, status)
		return
	}
	run, err := a.Research.StartResearch(r.Context(), identity, depth)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, run)
}

func (a *App) ResearchStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.Research.GetResearchStatus(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, status)
}

func (a *App) ReprocessResearch(w http.ResponseWriter, r *http.Request) {
	run, err := a.Research.Reprocess(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, run)
}

func (a *App) Project(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Research.Project(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}
