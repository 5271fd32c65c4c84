// Package video drives long-running Veo generations as polled jobs.
package video

import (
	"context"
	"fmt"
	"path"
	"strings"

	"contentforge/internal/domain"
	"contentforge/internal/generation"
	"contentforge/internal/providers/genai"
	"contentforge/internal/retry"
	"contentforge/internal/storage"
)

// Operations is the slice of the Gemini client the backend drives.
type Operations interface {
	Synthetic() bool
	VideoModel() string
	StartVideo(ctx context.Context, prompt, aspect string, seconds int) (string, error)
	VideoOperation(ctx context.Context, name string) (*genai.Operation, error)
	CancelOperation(ctx context.Context, name string) error
	Download(ctx context.Context, uri string) ([]byte, string, error)
}

// Backend starts Veo operations and collects their videos once done.
type Backend struct {
	ops   Operations
	store *storage.FileStore
}

func NewBackend(ops Operations, store *storage.FileStore) *Backend {
	return &Backend{ops: ops, store: store}
}

func (b *Backend) Kind() domain.JobKind { return domain.KindVideo }

func (b *Backend) Name() string {
	if b.ops.Synthetic() {
		return "synthetic:" + b.ops.VideoModel()
	}
	return "veo:" + b.ops.VideoModel()
}

// Generate submits the operation. One request covers a single clip, so the
// template length is clamped to what the model renders.
func (b *Backend) Generate(ctx context.Context, req generation.Request) (generation.Dispatch, error) {
	name, err := b.ops.StartVideo(ctx, req.Prompt, req.AspectRatio, genai.ClipSeconds(req.Duration))
	if err != nil {
		return generation.Dispatch{}, err
	}
	return generation.Dispatch{Handle: name}, nil
}

func (b *Backend) Status(ctx context.Context, handle string) (generation.Progress, error) {
	op, err := b.ops.VideoOperation(ctx, handle)
	if err != nil {
		return generation.Progress{}, err
	}
	if !op.Done {
		return generation.Progress{}, nil
	}
	if op.Error != nil {
		return generation.Progress{Done: true, Err: op.Error, Cancelled: op.Cancelled}, nil
	}
	data, mime, err := b.ops.Download(ctx, op.VideoURI)
	if err != nil {
		return generation.Progress{}, err
	}
	obj, err := b.store.Save(ctx, "video", objectName(handle), data, firstNonEmpty(mime, op.MimeType))
	if err != nil {
		return generation.Progress{}, retry.Permanent(fmt.Errorf("store video: %w", err))
	}
	return generation.Progress{Done: true, Output: &domain.JobOutput{
		Locator:  obj.Key,
		URL:      obj.URL,
		MimeType: obj.MimeType,
	}}, nil
}

func (b *Backend) Cancel(ctx context.Context, handle string) error {
	return b.ops.CancelOperation(ctx, handle)
}

// objectName derives a storage name from an operation name such as
// models/veo-3.0-generate-001/operations/abc123.
func objectName(handle string) string {
	base := path.Base(strings.TrimRight(handle, "/"))
	if base == "" || base == "." || base == "/" {
		return "operation"
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var (
	_ generation.Backend   = (*Backend)(nil)
	_ generation.Poller    = (*Backend)(nil)
	_ generation.Canceller = (*Backend)(nil)
	_ Operations           = (*genai.Client)(nil)
)
