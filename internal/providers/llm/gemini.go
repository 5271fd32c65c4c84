package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"contentforge/internal/domain"
	"contentforge/internal/providers/geminiapi"
	"contentforge/internal/retry"
)

const (
	geminiProviderName   = "gemini"
	geminiDefaultModel   = "gemini-2.5-flash"
	geminiDefaultTimeout = 60 * time.Second
)

// contentGenerator is the slice of genai.Models the completer needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiCompleter calls generateContent through the genai SDK.
type GeminiCompleter struct {
	models      contentGenerator
	model       string
	temperature float64
}

func NewGeminiCompleter(ctx context.Context, opts Options) (*GeminiCompleter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: geminiDefaultTimeout}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(opts.APIKey),
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: geminiapi.HTTPOptions(opts.BaseURL),
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiCompleter(client.Models, opts), nil
}

func newGeminiCompleter(models contentGenerator, opts Options) *GeminiCompleter {
	return &GeminiCompleter{
		models:      models,
		model:       coalesce(opts.Model, geminiDefaultModel),
		temperature: opts.Temperature,
	}
}

func (g *GeminiCompleter) Name() string { return geminiProviderName }

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(float32(g.temperature)),
		CandidateCount: 1,
	}
	if jsonMode {
		config.ResponseMIMEType = "application/json"
	}
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", geminiapi.ClassifyError(err)
	}
	if resp == nil {
		return "", retry.Transient(errors.New("gemini returned no response"))
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", retry.Permanent(fmt.Errorf("%w: gemini blocked prompt (%s)", domain.ErrContentPolicy, fb.BlockReason))
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		switch string(cand.FinishReason) {
		case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII":
			return "", retry.Permanent(fmt.Errorf("%w: gemini finish reason %s", domain.ErrContentPolicy, cand.FinishReason))
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && !part.Thought && strings.TrimSpace(part.Text) != "" {
				return StripThinking(part.Text), nil
			}
		}
	}
	return "", retry.Transient(errors.New("gemini returned no text"))
}
