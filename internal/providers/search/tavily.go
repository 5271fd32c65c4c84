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
	tavilyProviderName   = "tavily"
	tavilyDefaultBaseURL = "https://api.tavily.com"
)

type tavilyRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Query   string `json:"query"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
	limiter    *rate.Limiter
}

func NewTavily(opts Options) (*Tavily, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("tavily api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = tavilyDefaultBaseURL
	}
	return &Tavily{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		maxResults: opts.maxResults(),
		client:     opts.client(),
		limiter:    opts.limiter(),
	}, nil
}

func (t *Tavily) Name() string { return tavilyProviderName }

func (t *Tavily) Search(ctx context.Context, query string, depth domain.Depth) (*domain.RawResults, error) {
	if err := wait(ctx, t.limiter); err != nil {
		return nil, err
	}
	searchDepth := "basic"
	if depth == domain.DepthDeep {
		searchDepth = "advanced"
	}
	payload := tavilyRequest{
		Query:         query,
		SearchDepth:   searchDepth,
		MaxResults:    t.maxResults,
		IncludeAnswer: true,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode tavily request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", &buf)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, transportError(tavilyProviderName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, statusError(tavilyProviderName, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(tavilyProviderName, err)
	}
	var out tavilyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, retry.Transient(fmt.Errorf("decode tavily response: %w", err))
	}

	sources := make([]domain.Source, 0, len(out.Results))
	for _, r := range out.Results {
		sources = append(sources, domain.Source{URL: r.URL, Title: r.Title, Snippet: r.Content, Score: r.Score})
	}
	return &domain.RawResults{
		Provider: tavilyProviderName,
		Query:    query,
		Depth:    depth,
		Answer:   strings.TrimSpace(out.Answer),
		Results:  dedupeSources(sources),
		Raw:      json.RawMessage(body),
	}, nil
}

var _ Provider = (*Tavily)(nil)
