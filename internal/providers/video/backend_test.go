package video

import (
	"context"
	"errors"
	"testing"

	"contentforge/internal/domain"
	"contentforge/internal/generation"
	"contentforge/internal/providers/genai"
	"contentforge/internal/retry"
	"contentforge/internal/storage"
)

type fakeOps struct {
	started   []int
	op        *genai.Operation
	opErr     error
	cancelled []string
}

func (f *fakeOps) Synthetic() bool    { return false }
func (f *fakeOps) VideoModel() string { return "veo-test" }

func (f *fakeOps) StartVideo(ctx context.Context, prompt, aspect string, seconds int) (string, error) {
	f.started = append(f.started, seconds)
	return "models/veo-test/operations/op42", nil
}

func (f *fakeOps) VideoOperation(ctx context.Context, name string) (*genai.Operation, error) {
	return f.op, f.opErr
}

func (f *fakeOps) CancelOperation(ctx context.Context, name string) error {
	f.cancelled = append(f.cancelled, name)
	return nil
}

func (f *fakeOps) Download(ctx context.Context, uri string) ([]byte, string, error) {
	return []byte("mp4"), "video/mp4", nil
}

func newBackend(t *testing.T, ops *fakeOps) *Backend {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return NewBackend(ops, store)
}

func TestGenerateReturnsHandleAndClampsLength(t *testing.T) {
	ops := &fakeOps{}
	b := newBackend(t, ops)
	d, err := b.Generate(context.Background(), generation.Request{Prompt: "intro", Duration: 30})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if d.Output != nil || d.Handle != "models/veo-test/operations/op42" {
		t.Fatalf("dispatch = %+v", d)
	}
	if len(ops.started) != 1 || ops.started[0] != 8 {
		t.Fatalf("clip seconds = %v, want [8]", ops.started)
	}
	if b.Name() != "veo:veo-test" {
		t.Fatalf("Name = %q", b.Name())
	}
}

func TestStatusStates(t *testing.T) {
	ctx := context.Background()
	ops := &fakeOps{op: &genai.Operation{}}
	b := newBackend(t, ops)

	p, err := b.Status(ctx, "models/veo-test/operations/op42")
	if err != nil || p.Done {
		t.Fatalf("running Status = %+v, %v", p, err)
	}

	ops.op = &genai.Operation{Done: true, VideoURI: "files/x", MimeType: "video/mp4"}
	p, err = b.Status(ctx, "models/veo-test/operations/op42")
	if err != nil || !p.Done || p.Output == nil {
		t.Fatalf("done Status = %+v, %v", p, err)
	}
	if p.Output.Locator != "video/op42.mp4" || p.Output.URL != "/video/op42.mp4" {
		t.Fatalf("output = %+v", p.Output)
	}

	ops.op = &genai.Operation{Done: true, Error: domain.ErrContentPolicy}
	p, _ = b.Status(ctx, "h")
	if !p.Done || !errors.Is(p.Err, domain.ErrContentPolicy) {
		t.Fatalf("failed Status = %+v", p)
	}

	ops.opErr = retry.Transient(errors.New("503"))
	if _, err := b.Status(ctx, "h"); !retry.IsRetryable(err) {
		t.Fatalf("status error = %v, want retryable", err)
	}
}

func TestCancelForwardsHandle(t *testing.T) {
	ops := &fakeOps{}
	b := newBackend(t, ops)
	if err := b.Cancel(context.Background(), "op"); err != nil || len(ops.cancelled) != 1 {
		t.Fatalf("Cancel = %v, cancelled %v", err, ops.cancelled)
	}
}

func TestSyntheticLifecycle(t *testing.T) {
	client, _ := genai.NewClient(genai.Options{})
	store, _ := storage.NewFileStore(t.TempDir(), "")
	b := NewBackend(client, store)
	ctx := context.Background()
	d, err := b.Generate(ctx, generation.Request{Prompt: "intro", AspectRatio: "16:9", Duration: 30})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	p, err := b.Status(ctx, d.Handle)
	if err != nil || !p.Done || p.Output == nil {
		t.Fatalf("Status = %+v, %v", p, err)
	}
}
