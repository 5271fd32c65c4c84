package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"contentforge/internal/domain"
	"contentforge/internal/providers/geminiapi"
	"contentforge/internal/retry"
)

const (
	geminiProviderName  = "gemini"
	geminiDefaultSearch = "gemini-2.5-flash"
)

// contentGenerator is the slice of genai.Models the provider needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGrounded answers with Gemini using the Google Search tool and reports
// grounding chunks as sources.
type GeminiGrounded struct {
	models  contentGenerator
	model   string
	limiter *rate.Limiter
	now     func() time.Time
}

func NewGeminiGrounded(ctx context.Context, opts Options) (*GeminiGrounded, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(opts.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiGrounded(client.Models, opts), nil
}

func newGeminiGrounded(models contentGenerator, opts Options) *GeminiGrounded {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = geminiDefaultSearch
	}
	return &GeminiGrounded{models: models, model: model, limiter: opts.limiter(), now: time.Now}
}

func (g *GeminiGrounded) Name() string { return geminiProviderName }

func (g *GeminiGrounded) Search(ctx context.Context, query string, depth domain.Depth) (*domain.RawResults, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(g.prompt(query, depth), genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, geminiapi.ClassifyError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, retry.Transient(errors.New("gemini search returned no candidates"))
	}

	cand := resp.Candidates[0]
	var answer strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" {
			answer.WriteString(part.Text)
		}
	}
	var sources []domain.Source
	if gm := cand.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk != nil && chunk.Web != nil {
				sources = append(sources, domain.Source{URL: chunk.Web.URI, Title: chunk.Web.Title})
			}
		}
	}
	raw, _ := json.Marshal(resp)
	return &domain.RawResults{
		Provider: geminiProviderName,
		Query:    query,
		Depth:    depth,
		Answer:   strings.TrimSpace(answer.String()),
		Results:  dedupeSources(sources),
		Raw:      raw,
	}, nil
}

func (g *GeminiGrounded) prompt(query string, depth domain.Depth) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a crypto research assistant. Today's date is %s.\n", g.now().Format("January 2, 2006"))
	b.WriteString("Search the web and answer the query with specific facts, figures and sources.\n")
	if depth == domain.DepthDeep {
		b.WriteString("Cover features, tokenomics, technology, team, roadmap, social channels and competitors.\n")
	}
	b.WriteString("\nQuery: ")
	b.WriteString(query)
	return b.String()
}

var _ Provider = (*GeminiGrounded)(nil)
