package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contentforge/internal/domain"
	"contentforge/internal/retry"
)

const (
	openAIProviderName   = "openai"
	hermesProviderName   = "hermes"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o-mini"
	hermesDefaultBaseURL = "https://inference-api.nousresearch.com/v1"
	hermesDefaultModel   = "Hermes-4-70B"
	openAIDefaultTimeout = 60 * time.Second
)

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// OpenAICompleter speaks the chat completions protocol. Hermes serves the
// same protocol and is built with NewHermesCompleter.
type OpenAICompleter struct {
	name         string
	apiKey       string
	model        string
	baseURL      string
	organization string
	temperature  float64
	jsonFormat   bool
	client       *http.Client
}

func NewOpenAICompleter(opts Options) (*OpenAICompleter, error) {
	return newChatCompleter(openAIProviderName, openAIDefaultBaseURL, openAIDefaultModel, true, opts)
}

// NewHermesCompleter targets the Nous inference API, which does not accept
// response_format; JSON mode relies on the prompt alone.
func NewHermesCompleter(opts Options) (*OpenAICompleter, error) {
	return newChatCompleter(hermesProviderName, hermesDefaultBaseURL, hermesDefaultModel, false, opts)
}

func newChatCompleter(name, defaultBase, defaultModel string, jsonFormat bool, opts Options) (*OpenAICompleter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%s api key is required", name)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBase
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAICompleter{
		name:         name,
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        coalesce(opts.Model, defaultModel),
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		temperature:  opts.Temperature,
		jsonFormat:   jsonFormat,
		client:       client,
	}, nil
}

func (o *OpenAICompleter) Name() string { return o.name }

func (o *OpenAICompleter) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	system := "You are a precise crypto research and content assistant."
	if jsonMode {
		system = "You are a precise crypto research assistant that only responds with valid JSON."
	}
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
	if jsonMode && o.jsonFormat {
		payload.ResponseFormat = &openAIFormat{Type: "json_object"}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", retry.Permanent(fmt.Errorf("encode %s request: %w", o.name, err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", retry.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", transportError(o.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", statusError(o.name, resp)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", retry.Transient(fmt.Errorf("decode %s response: %w", o.name, err))
	}
	if len(out.Choices) == 0 {
		return "", retry.Transient(fmt.Errorf("%s returned no choices", o.name))
	}
	choice := out.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", retry.Permanent(fmt.Errorf("%w: %s content filter", domain.ErrContentPolicy, o.name))
	}
	text := StripThinking(choice.Message.Content)
	if text == "" {
		return "", retry.Transient(errors.New(o.name + " returned an empty message"))
	}
	return text, nil
}
