// Package text generates written content with an LLM.
package text

import (
	"context"
	"errors"
	"fmt"

	"contentforge/internal/domain"
	"contentforge/internal/generation"
	"contentforge/internal/providers/llm"
	"contentforge/internal/retry"
)

// Completer is the LLM capability used for copywriting.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Backend answers a rendered prompt in a single synchronous call.
type Backend struct {
	llm Completer
}

func NewBackend(completer Completer) *Backend {
	return &Backend{llm: completer}
}

func (b *Backend) Kind() domain.JobKind { return domain.KindText }

func (b *Backend) Name() string { return b.llm.Name() }

func (b *Backend) Generate(ctx context.Context, req generation.Request) (generation.Dispatch, error) {
	out, err := b.llm.Complete(ctx, req.Prompt, false)
	if err != nil {
		return generation.Dispatch{}, err
	}
	text := llm.StripThinking(out)
	if text == "" {
		return generation.Dispatch{}, retry.Transient(fmt.Errorf("%s: %w", b.llm.Name(), errEmpty))
	}
	return generation.Dispatch{Output: &domain.JobOutput{Text: text, MimeType: "text/plain"}}, nil
}

var errEmpty = errors.New("empty completion")

var _ generation.Backend = (*Backend)(nil)
