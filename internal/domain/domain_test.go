package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateTransition(t *testing.T) {
	data := &StructuredData{}
	tests := []struct {
		name    string
		from    ResearchStatus
		to      ResearchStatus
		patch   TransitionPatch
		wantErr bool
	}{
		{"pending to processing", ResearchPending, ResearchProcessing, TransitionPatch{RunID: "r1"}, false},
		{"processing to completed", ResearchProcessing, ResearchCompleted, TransitionPatch{StructuredData: data}, false},
		{"processing to failed", ResearchProcessing, ResearchFailed, TransitionPatch{Error: "search failed"}, false},
		{"completed without data", ResearchProcessing, ResearchCompleted, TransitionPatch{}, true},
		{"failed without reason", ResearchProcessing, ResearchFailed, TransitionPatch{}, true},
		{"pending to completed", ResearchPending, ResearchCompleted, TransitionPatch{StructuredData: data}, true},
		{"completed is terminal", ResearchCompleted, ResearchProcessing, TransitionPatch{}, true},
		{"failed is terminal", ResearchFailed, ResearchCompleted, TransitionPatch{StructuredData: data}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTransition(tc.from, tc.to, tc.patch)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateTransition() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestApplyTransitionClearsDataOutsideCompleted(t *testing.T) {
	summary := "DEX"
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := &ProjectRecord{ID: "p1", Status: ResearchProcessing, RunID: "r1"}

	rec.ApplyTransition(ResearchCompleted, TransitionPatch{StructuredData: &StructuredData{Summary: &summary}}, now)
	if rec.StructuredData == nil || *rec.StructuredData.Summary != "DEX" || !rec.UpdatedAt.Equal(now) {
		t.Fatalf("record = %+v", rec)
	}
	summary = "changed"
	if *rec.StructuredData.Summary != "DEX" {
		t.Fatalf("record shares structured data with the patch")
	}

	rec.ApplyTransition(ResearchProcessing, TransitionPatch{RunID: "r2"}, now)
	if rec.StructuredData != nil || rec.RunID != "r2" {
		t.Fatalf("new run kept data or run id: %+v", rec)
	}
}

func TestPreviousDataIsSeparateFromCurrent(t *testing.T) {
	old, fresh := "old", "new"
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := &ProjectRecord{ID: "p1", Status: ResearchProcessing, PreviousData: &StructuredData{Summary: &old}}

	rec.ApplyTransition(ResearchFailed, TransitionPatch{Error: "llm down"}, now)
	if rec.StructuredData != nil || rec.LastGoodData() == nil || *rec.LastGoodData().Summary != "old" {
		t.Fatalf("failed run = %+v, want previous data kept aside", rec)
	}
	cp := rec.Clone()
	*cp.PreviousData.Summary = "mutated"
	if *rec.PreviousData.Summary != "old" {
		t.Fatalf("Clone shares previous data")
	}

	rec.Status = ResearchProcessing
	rec.ApplyTransition(ResearchCompleted, TransitionPatch{StructuredData: &StructuredData{Summary: &fresh}}, now)
	if rec.PreviousData != nil || *rec.LastGoodData().Summary != "new" {
		t.Fatalf("completed run = %+v, want previous data cleared", rec)
	}
}

func TestJobSettlement(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	job := &GenerationJob{ID: "j1", Status: JobRunning}

	job.Fail("", now)
	if job.Status != JobFailed || job.Error == nil || *job.Error == "" || job.Output != nil {
		t.Fatalf("failed job = %+v", job)
	}
	if !job.Status.Terminal() || job.CompletedAt == nil {
		t.Fatalf("failed job not terminal")
	}

	job = &GenerationJob{ID: "j2", Status: JobRunning}
	job.Complete(JobOutput{Text: "hello"}, now)
	if job.Status != JobCompleted || job.Output == nil || job.Error != nil {
		t.Fatalf("completed job = %+v", job)
	}

	job.Cancel(now)
	if job.Status != JobCancelled || job.Output != nil {
		t.Fatalf("cancelled job = %+v", job)
	}
	if JobRunning.Terminal() || JobQueued.Terminal() {
		t.Fatalf("running or queued reported terminal")
	}
}

func TestJobCloneIsDeep(t *testing.T) {
	reason := "boom"
	deadline := time.Now()
	job := &GenerationJob{
		ID:       "j1",
		Input:    JobInput{Variables: map[string]string{"cta": "Join"}},
		Output:   &JobOutput{URL: "/a.png"},
		Error:    &reason,
		Deadline: &deadline,
	}
	c := job.Clone()
	c.Input.Variables["cta"] = "Leave"
	c.Output.URL = "/b.png"
	*c.Error = "other"
	if job.Input.Variables["cta"] != "Join" || job.Output.URL != "/a.png" || *job.Error != "boom" {
		t.Fatalf("clone shares state with original: %+v", job)
	}
	if (*GenerationJob)(nil).Clone() != nil {
		t.Fatalf("nil clone is not nil")
	}
}

func TestJobKind(t *testing.T) {
	if !KindImage.RequiresResearch() || !KindVideo.RequiresResearch() || KindText.RequiresResearch() {
		t.Fatalf("RequiresResearch mismatch")
	}
	if JobKind("audio").Valid() {
		t.Fatalf("audio reported valid")
	}
}

func TestStructuredDataSerializesMissingAsNull(t *testing.T) {
	d := &StructuredData{Missing: []string{KeySummary}, KeyFeatures: []string{"swaps"}}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	for _, key := range SchemaKeys {
		if !strings.Contains(string(raw), `"`+key+`"`) {
			t.Fatalf("serialized record lacks %s: %s", key, raw)
		}
	}
	if !strings.Contains(string(raw), `"summary":null`) {
		t.Fatalf("summary not null: %s", raw)
	}
	if d.Has(KeySummary) || !d.Has(KeyFeatures) {
		t.Fatalf("Has mismatch")
	}
}
