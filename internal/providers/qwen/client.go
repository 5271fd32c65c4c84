package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/retry"
)

const (
	providerName   = "qwen"
	defaultBaseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel   = "qwen-image-plus"
	defaultSize    = "1328*1328"
	maxErrorBody   = 2048
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// Options configures the DashScope Qwen client.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	PromptExtend bool
	Watermark    bool
	HTTPClient   *http.Client
	Logger       infra.Logger
}

// Client performs HTTP calls to the DashScope Qwen text-to-image API.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	logger       infra.Logger
}

// ImageRequest captures the inputs for one image.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	Seed           int
}

// Image is the downloaded result of a generation.
type Image struct {
	SourceURL string
	Data      []byte
	MimeType  string
	Width     int
	Height    int
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Text string `json:"text,omitempty"`
}

type generationParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
	Seed           *int   `json:"seed,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		logger:       opts.Logger,
	}, nil
}

func (c *Client) Model() string { return c.model }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// GenerateImage invokes DashScope once and downloads the resulting image.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*Image, error) {
	if !c.HasCredentials() {
		return nil, retry.Permanent(ErrMissingAPIKey)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: qwen prompt is required", domain.ErrValidation))
	}
	payload := generationRequest{
		Model: c.model,
		Input: generationInput{Messages: []generationMessage{{
			Role:    "user",
			Content: []generationContent{{Text: prompt}},
		}}},
		Parameters: generationParams{
			NegativePrompt: strings.TrimSpace(req.NegativePrompt),
			Size:           SizeFor(req.AspectRatio),
		},
	}
	if c.promptExtend {
		extend := true
		payload.Parameters.PromptExtend = &extend
	}
	if req.Seed > 0 {
		seed := req.Seed
		payload.Parameters.Seed = &seed
	}
	watermark := c.watermark
	payload.Parameters.Watermark = &watermark

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("qwen: encode request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services/aigc/multimodal-generation/generation", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("qwen: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, classify(resp, raw)
	}
	var decoded generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, retry.Transient(fmt.Errorf("qwen: decode response: %w", err))
	}
	if decoded.Code != "" {
		return nil, codeError(decoded.Code, decoded.Message)
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, retry.Transient(errors.New("qwen: empty image url"))
	}
	data, mime, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	width, height := decoded.Usage.Width, decoded.Usage.Height
	if width == 0 || height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}
	c.logger.Debug().Str("model", c.model).Str("request_id", decoded.RequestID).Msg("qwen: generated image")
	return &Image{SourceURL: imageURL, Data: data, MimeType: mime, Width: width, Height: height}, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", retry.Permanent(fmt.Errorf("qwen: invalid image url: %s", imageURL))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", retry.Permanent(fmt.Errorf("qwen: build download request: %w", err))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", retry.FromResponse(providerName, resp, string(raw))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", transportError(err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// SizeFor maps an aspect ratio onto a DashScope size string.
func SizeFor(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4", "4:5":
		return "1140*1472"
	case "9:16":
		return "928*1664"
	default:
		return defaultSize
	}
}

func classify(resp *http.Response, raw []byte) error {
	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &detail) == nil && detail.Code != "" {
		if isPolicyCode(detail.Code) {
			return retry.Permanent(fmt.Errorf("%w: qwen %s: %s", domain.ErrContentPolicy, detail.Code, detail.Message))
		}
		return retry.FromResponse(providerName, resp, detail.Message+" ("+detail.Code+")")
	}
	return retry.FromResponse(providerName, resp, string(raw))
}

// codeError classifies an error reported inside a 200 response.
func codeError(code, message string) error {
	err := fmt.Errorf("qwen: %s (%s)", message, code)
	switch {
	case isPolicyCode(code):
		return retry.Permanent(fmt.Errorf("%w: %v", domain.ErrContentPolicy, err))
	case isTransientCode(code, message):
		return retry.Transient(err)
	default:
		return retry.Permanent(err)
	}
}

func isPolicyCode(code string) bool {
	return strings.Contains(strings.ToLower(code), "datainspection")
}

func isTransientCode(code, message string) bool {
	msg := strings.ToLower(code + " " + message)
	for _, marker := range []string{"internalerror", "internal error", "service unavailable", "server unavailable", "timeout", "throttling"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return retry.Transient(fmt.Errorf("qwen request: %w", err))
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}
