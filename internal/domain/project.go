package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResearchStatus enumerates the lifecycle of a research run.
type ResearchStatus string

const (
	ResearchPending    ResearchStatus = "pending"
	ResearchProcessing ResearchStatus = "processing"
	ResearchCompleted  ResearchStatus = "completed"
	ResearchFailed     ResearchStatus = "failed"
)

// Terminal reports whether no further transition is allowed within the run.
func (s ResearchStatus) Terminal() bool {
	return s == ResearchCompleted || s == ResearchFailed
}

// Depth selects how broad a research query is.
type Depth string

const (
	DepthShallow Depth = "shallow"
	DepthDeep    Depth = "deep"
)

// Identity names the project being researched.
type Identity struct {
	Name            string `json:"name,omitempty" validate:"omitempty,max=200"`
	URL             string `json:"url" validate:"required,url,max=2048"`
	ContractAddress string `json:"contract_address,omitempty" validate:"omitempty,max=128"`
}

// ProjectRecord is the canonical research record for one project.
type ProjectRecord struct {
	ID             string          `json:"id"`
	Identity       Identity        `json:"identity"`
	RunID          string          `json:"run_id"`
	Status         ResearchStatus  `json:"research_status"`
	StructuredData *StructuredData `json:"structured_data"`
	// PreviousData is the last completed extraction while a newer run is
	// pending, processing or failed. A completed run clears it.
	PreviousData *StructuredData `json:"previous_structured_data,omitempty"`
	Provenance   *Provenance     `json:"provenance,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (p *ProjectRecord) Clone() *ProjectRecord {
	if p == nil {
		return nil
	}
	out := *p
	out.StructuredData = p.StructuredData.Clone()
	out.PreviousData = p.PreviousData.Clone()
	out.Provenance = p.Provenance.Clone()
	return &out
}

// Source is one citation returned by a search provider.
type Source struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// RawResults is the aggregated output of a search provider.
type RawResults struct {
	Provider string          `json:"provider"`
	Query    string          `json:"query"`
	Depth    Depth           `json:"depth"`
	Answer   string          `json:"answer"`
	Results  []Source        `json:"results"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// Provenance keeps the evidence a structured record was built from.
type Provenance struct {
	RunID       string          `json:"run_id"`
	Provider    string          `json:"provider"`
	Query       string          `json:"query"`
	Depth       Depth           `json:"depth"`
	Answer      string          `json:"answer"`
	Sources     []Source        `json:"sources"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	CollectedAt time.Time       `json:"collected_at"`
}

func (p *Provenance) Clone() *Provenance {
	if p == nil {
		return nil
	}
	out := *p
	out.Sources = append([]Source(nil), p.Sources...)
	out.Raw = append(json.RawMessage(nil), p.Raw...)
	return &out
}

// RawResults rebuilds the collector output from retained provenance.
func (p *Provenance) RawResults() *RawResults {
	if p == nil {
		return nil
	}
	return &RawResults{
		Provider: p.Provider,
		Query:    p.Query,
		Depth:    p.Depth,
		Answer:   p.Answer,
		Results:  append([]Source(nil), p.Sources...),
		Raw:      append(json.RawMessage(nil), p.Raw...),
	}
}

// TransitionPatch carries the fields written together with a status change.
type TransitionPatch struct {
	// RunID is stamped when entering processing and checked on every later
	// transition when non-empty.
	RunID          string
	StructuredData *StructuredData
	Error          string
}

var allowedTransitions = map[ResearchStatus][]ResearchStatus{
	ResearchPending:    {ResearchProcessing},
	ResearchProcessing: {ResearchCompleted, ResearchFailed},
}

// ValidateTransition checks a status change and the data that travels with it.
func ValidateTransition(from, to ResearchStatus, patch TransitionPatch) error {
	allowed := false
	for _, next := range allowedTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: research transition %s -> %s", ErrValidation, from, to)
	}
	switch to {
	case ResearchCompleted:
		if patch.StructuredData == nil {
			return fmt.Errorf("%w: completed research requires structured data", ErrValidation)
		}
	case ResearchFailed:
		if patch.Error == "" {
			return fmt.Errorf("%w: failed research requires an error description", ErrValidation)
		}
	}
	return nil
}

// LastGoodData is the newest completed extraction the record still holds.
func (p *ProjectRecord) LastGoodData() *StructuredData {
	if p.StructuredData != nil {
		return p.StructuredData
	}
	return p.PreviousData
}

// ApplyTransition writes a validated transition onto the record.
func (p *ProjectRecord) ApplyTransition(to ResearchStatus, patch TransitionPatch, now time.Time) {
	p.Status = to
	if to == ResearchProcessing && patch.RunID != "" {
		p.RunID = patch.RunID
	}
	if to == ResearchCompleted {
		p.StructuredData = patch.StructuredData.Clone()
		p.PreviousData = nil
	} else {
		p.StructuredData = nil
	}
	p.Error = patch.Error
	p.UpdatedAt = now
}
