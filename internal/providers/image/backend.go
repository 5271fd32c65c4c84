// Package image adapts image models to the generation backend contract and
// persists their output.
package image

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"contentforge/internal/domain"
	"contentforge/internal/generation"
	"contentforge/internal/providers/genai"
	"contentforge/internal/providers/qwen"
	"contentforge/internal/retry"
	"contentforge/internal/storage"
)

// Asset is a generated image before it is stored.
type Asset struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Generator is the contract implemented by every image model adapter.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req generation.Request) (*Asset, error)
}

// Backend renders an image with its generator and stores the bytes. The
// result is available as soon as Generate returns.
type Backend struct {
	gen   Generator
	store *storage.FileStore
}

func NewBackend(gen Generator, store *storage.FileStore) *Backend {
	return &Backend{gen: gen, store: store}
}

func (b *Backend) Kind() domain.JobKind { return domain.KindImage }

func (b *Backend) Name() string { return b.gen.Name() }

func (b *Backend) Generate(ctx context.Context, req generation.Request) (generation.Dispatch, error) {
	asset, err := b.gen.Generate(ctx, req)
	if err != nil {
		return generation.Dispatch{}, err
	}
	obj, err := b.store.Save(ctx, "image/"+req.ProjectID, req.JobID, asset.Data, asset.MimeType)
	if err != nil {
		return generation.Dispatch{}, retry.Permanent(fmt.Errorf("store image: %w", err))
	}
	return generation.Dispatch{Output: &domain.JobOutput{
		Locator:  obj.Key,
		URL:      obj.URL,
		MimeType: obj.MimeType,
	}}, nil
}

// GeminiGenerator renders through the Gemini image model.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Name() string {
	if g.client.Synthetic() {
		return "synthetic:" + g.client.ImageModel()
	}
	return "gemini:" + g.client.ImageModel()
}

func (g *GeminiGenerator) Generate(ctx context.Context, req generation.Request) (*Asset, error) {
	img, err := g.client.GenerateImage(ctx, req.Prompt, req.AspectRatio)
	if err != nil {
		return nil, err
	}
	return &Asset{Data: img.Data, MimeType: img.MimeType, Width: img.Width, Height: img.Height}, nil
}

// QwenGenerator renders through DashScope's Qwen image model.
type QwenGenerator struct {
	client *qwen.Client
}

func NewQwenGenerator(client *qwen.Client) *QwenGenerator {
	return &QwenGenerator{client: client}
}

func (g *QwenGenerator) Name() string { return "qwen:" + g.client.Model() }

func (g *QwenGenerator) Generate(ctx context.Context, req generation.Request) (*Asset, error) {
	img, err := g.client.GenerateImage(ctx, qwen.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: "text artifacts, watermark, blurry",
		AspectRatio:    req.AspectRatio,
		Seed:           deterministicSeed(req.JobID, req.Prompt),
	})
	if err != nil {
		return nil, err
	}
	return &Asset{Data: img.Data, MimeType: img.MimeType, Width: img.Width, Height: img.Height}, nil
}

// deterministicSeed keeps retries of one job on the same seed.
func deterministicSeed(values ...string) int {
	sum := sha256.Sum256([]byte(strings.Join(values, "|")))
	n := int(binary.BigEndian.Uint32(sum[:4]) % 2147483647)
	if n == 0 {
		n = 1
	}
	return n
}

var (
	_ generation.Backend = (*Backend)(nil)
	_ Generator          = (*GeminiGenerator)(nil)
	_ Generator          = (*QwenGenerator)(nil)
)
