package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"contentforge/internal/domain"
	"contentforge/internal/retry"
)

const (
	perplexityProviderName   = "perplexity"
	perplexityDefaultBaseURL = "https://api.perplexity.ai"
	perplexityDefaultModel   = "sonar"
	perplexityDeepModel      = "sonar-pro"
)

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
	Citations     []string `json:"citations"`
	SearchResults []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"search_results"`
}

// Perplexity asks the sonar models for a cited answer.
type Perplexity struct {
	apiKey    string
	baseURL   string
	model     string
	deepModel string
	client    *http.Client
	limiter   *rate.Limiter
}

func NewPerplexity(opts Options) (*Perplexity, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("perplexity api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = perplexityDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = perplexityDefaultModel
	}
	deep := strings.TrimSpace(opts.DeepModel)
	if deep == "" {
		deep = perplexityDeepModel
	}
	return &Perplexity{
		apiKey:    strings.TrimSpace(opts.APIKey),
		baseURL:   baseURL,
		model:     model,
		deepModel: deep,
		client:    opts.client(),
		limiter:   opts.limiter(),
	}, nil
}

func (p *Perplexity) Name() string { return perplexityProviderName }

func (p *Perplexity) Search(ctx context.Context, query string, depth domain.Depth) (*domain.RawResults, error) {
	if err := wait(ctx, p.limiter); err != nil {
		return nil, err
	}
	model := p.model
	if depth == domain.DepthDeep {
		model = p.deepModel
	}
	payload := perplexityRequest{
		Model: model,
		Messages: []perplexityMessage{
			{Role: "system", Content: "You are a crypto research analyst. Answer with concrete, sourced facts."},
			{Role: "user", Content: query},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode perplexity request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(perplexityProviderName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, statusError(perplexityProviderName, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(perplexityProviderName, err)
	}
	var out perplexityResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, retry.Transient(fmt.Errorf("decode perplexity response: %w", err))
	}
	if len(out.Choices) == 0 {
		return nil, retry.Transient(errors.New("perplexity returned no choices"))
	}

	var sources []domain.Source
	for _, r := range out.SearchResults {
		sources = append(sources, domain.Source{URL: r.URL, Title: r.Title, Snippet: r.Snippet})
	}
	for _, c := range out.Citations {
		sources = append(sources, domain.Source{URL: c})
	}
	return &domain.RawResults{
		Provider: perplexityProviderName,
		Query:    query,
		Depth:    depth,
		Answer:   strings.TrimSpace(out.Choices[0].Message.Content),
		Results:  dedupeSources(sources),
		Raw:      json.RawMessage(body),
	}, nil
}

var _ Provider = (*Perplexity)(nil)
