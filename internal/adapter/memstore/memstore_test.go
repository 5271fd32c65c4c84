package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"contentforge/internal/domain"
)

func seedPending(t *testing.T, s *ProjectStore, id, run string) {
	t.Helper()
	err := s.Upsert(context.Background(), &domain.ProjectRecord{
		ID:       id,
		Identity: domain.Identity{URL: "https://example.io"},
		RunID:    run,
	})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
}

func TestTransitionIsGuardedByFromStatus(t *testing.T) {
	s := NewProjectStore()
	ctx := context.Background()
	seedPending(t, s, "p1", "run-1")

	if _, err := s.Transition(ctx, "p1", domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: "run-1"}); err != nil {
		t.Fatalf("first claim error: %v", err)
	}
	_, err := s.Transition(ctx, "p1", domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: "run-2"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second claim error = %v, want ErrConflict", err)
	}
}

func TestConcurrentClaimsYieldExactlyOneWinner(t *testing.T) {
	s := NewProjectStore()
	seedPending(t, s, "p1", "run-0")

	const racers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(context.Background(), "p1", domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("wins = %d conflicts = %d, want 1 and %d", wins, conflicts, racers-1)
	}
}

func TestUpsertRejectedWhileProcessing(t *testing.T) {
	s := NewProjectStore()
	ctx := context.Background()
	seedPending(t, s, "p1", "run-1")
	if _, err := s.Transition(ctx, "p1", domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: "run-1"}); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	err := s.Upsert(ctx, &domain.ProjectRecord{ID: "p1", RunID: "run-2"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Upsert error = %v, want ErrConflict", err)
	}
}

func TestCompletedRecordCarriesDataAndNewRunKeepsItAside(t *testing.T) {
	s := NewProjectStore()
	ctx := context.Background()
	seedPending(t, s, "p1", "run-1")
	if _, err := s.Transition(ctx, "p1", domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: "run-1"}); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	summary := "ok"
	rec, err := s.Transition(ctx, "p1", domain.ResearchProcessing, domain.ResearchCompleted, domain.TransitionPatch{
		RunID:          "run-1",
		StructuredData: &domain.StructuredData{Summary: &summary},
	})
	if err != nil {
		t.Fatalf("complete error: %v", err)
	}
	if rec.StructuredData == nil {
		t.Fatalf("completed record has no structured data")
	}
	created := rec.CreatedAt

	seedPending(t, s, "p1", "run-2")
	got, err := s.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != domain.ResearchPending || got.StructuredData != nil {
		t.Fatalf("new run = %s with data %v, want pending without data", got.Status, got.StructuredData)
	}
	if got.PreviousData == nil || got.PreviousData.Summary == nil || *got.PreviousData.Summary != "ok" {
		t.Fatalf("PreviousData = %+v, want the last completed extraction", got.PreviousData)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt changed across runs: %v -> %v", created, got.CreatedAt)
	}
}

func TestPreviousDataSurvivesFailedRunsUntilNextCompletion(t *testing.T) {
	s := NewProjectStore()
	ctx := context.Background()
	settle := func(run string, to domain.ResearchStatus, summary string) {
		t.Helper()
		seedPending(t, s, "p1", run)
		if _, err := s.Transition(ctx, "p1", domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: run}); err != nil {
			t.Fatalf("%s claim error: %v", run, err)
		}
		patch := domain.TransitionPatch{RunID: run, Error: "llm down"}
		if to == domain.ResearchCompleted {
			patch = domain.TransitionPatch{RunID: run, StructuredData: &domain.StructuredData{Summary: &summary}}
		}
		if _, err := s.Transition(ctx, "p1", domain.ResearchProcessing, to, patch); err != nil {
			t.Fatalf("%s settle error: %v", run, err)
		}
	}

	settle("run-1", domain.ResearchCompleted, "first")
	settle("run-2", domain.ResearchFailed, "")
	settle("run-3", domain.ResearchFailed, "")
	got, _ := s.Get(ctx, "p1")
	if got.Status != domain.ResearchFailed || got.StructuredData != nil {
		t.Fatalf("record = %s with data %v, want failed without data", got.Status, got.StructuredData)
	}
	if last := got.LastGoodData(); last == nil || *last.Summary != "first" {
		t.Fatalf("last good data = %+v, want first extraction", last)
	}

	settle("run-4", domain.ResearchCompleted, "second")
	got, _ = s.Get(ctx, "p1")
	if got.PreviousData != nil || *got.StructuredData.Summary != "second" {
		t.Fatalf("record = %+v / %+v, want only the new extraction", got.StructuredData, got.PreviousData)
	}
}

func TestStaleRunCannotSettle(t *testing.T) {
	s := NewProjectStore()
	ctx := context.Background()
	seedPending(t, s, "p1", "run-1")
	if _, err := s.Transition(ctx, "p1", domain.ResearchPending, domain.ResearchProcessing, domain.TransitionPatch{RunID: "run-1"}); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	_, err := s.Transition(ctx, "p1", domain.ResearchProcessing, domain.ResearchFailed, domain.TransitionPatch{RunID: "run-x", Error: "boom"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale settle error = %v, want ErrConflict", err)
	}
	if err := s.SaveProvenance(ctx, "p1", &domain.Provenance{RunID: "run-x"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale provenance error = %v, want ErrConflict", err)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	s := NewProjectStore()
	ctx := context.Background()
	seedPending(t, s, "p1", "run-1")
	if err := s.SaveProvenance(ctx, "p1", &domain.Provenance{RunID: "run-1", Sources: []domain.Source{{URL: "https://a"}}}); err != nil {
		t.Fatalf("SaveProvenance error: %v", err)
	}
	first, _ := s.Get(ctx, "p1")
	first.Provenance.Sources[0].URL = "mutated"
	second, _ := s.Get(ctx, "p1")
	if second.Provenance.Sources[0].URL != "https://a" {
		t.Fatalf("store state leaked through Get: %q", second.Provenance.Sources[0].URL)
	}
}

func TestGetMissing(t *testing.T) {
	s := NewProjectStore()
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestJobUpdateGuard(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()
	job := &domain.GenerationJob{ID: "j1", Status: domain.JobRunning}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.Create(ctx, job); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate Create error = %v, want ErrConflict", err)
	}
	job.Status = domain.JobCancelled
	if err := s.Update(ctx, job, domain.JobRunning); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	job.Status = domain.JobCompleted
	if err := s.Update(ctx, job, domain.JobRunning); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale Update error = %v, want ErrConflict", err)
	}
	running, err := s.ListByStatus(ctx, domain.JobRunning, 10)
	if err != nil || len(running) != 0 {
		t.Fatalf("ListByStatus(running) = %d jobs, %v", len(running), err)
	}
}
