package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/retry"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultVideoModel = "veo-3.0-generate-001"
	providerName      = "gemini"
	syntheticPrefix   = "synthetic/operations/"
	syntheticScheme   = "synthetic://"
	maxErrorBody      = 2048

	minClipSeconds = 4
	maxClipSeconds = 8
)

// Options controls how the Gemini media client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	VideoModel string
	HTTPClient *http.Client
	Logger     infra.Logger
	// SyntheticLatency is how long a synthetic video operation stays running.
	SyntheticLatency time.Duration
}

// Client wraps the Gemini image and Veo video endpoints. Without an API key it
// serves deterministic synthetic assets so local and CI environments keep the
// whole job lifecycle working.
type Client struct {
	apiKey     string
	baseURL    string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     infra.Logger
	latency    time.Duration
	now        func() time.Time

	mu        sync.Mutex
	synthetic map[string]*syntheticOp
}

// Image is a generated still.
type Image struct {
	Data      []byte
	MimeType  string
	Width     int
	Height    int
	Synthetic bool
}

// Operation is the state of a long-running video generation.
type Operation struct {
	Name     string
	Done     bool
	VideoURI string
	MimeType string
	// Error is set when the operation finished without a video.
	Error     error
	Cancelled bool
}

type syntheticOp struct {
	prompt    string
	started   time.Time
	cancelled bool
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type videoInstance struct {
	Prompt string `json:"prompt"`
}

type videoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type predictRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI      string `json:"uri"`
					MimeType string `json:"mimeType"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient constructs a Gemini media client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	latency := opts.SyntheticLatency
	if latency < 0 {
		latency = 0
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageModel: firstNonEmpty(opts.ImageModel, defaultImageModel),
		videoModel: firstNonEmpty(opts.VideoModel, defaultVideoModel),
		httpClient: httpClient,
		logger:     opts.Logger,
		latency:    latency,
		now:        time.Now,
		synthetic:  make(map[string]*syntheticOp),
	}, nil
}

// Synthetic reports whether the client fabricates assets locally.
func (c *Client) Synthetic() bool { return c.apiKey == "" }

func (c *Client) ImageModel() string { return c.imageModel }

func (c *Client) VideoModel() string { return c.videoModel }

// GenerateImage renders one image for prompt at the given aspect ratio.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspect string) (*Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: image prompt is empty", domain.ErrValidation))
	}
	if c.Synthetic() {
		w, h := normalizeAspect(aspect)
		data := renderSyntheticImage(w, h, deterministicSeed(c.imageModel, prompt, aspect))
		if data == nil {
			return nil, retry.Permanent(errors.New("gemini: render synthetic image"))
		}
		c.logger.Debug().Str("model", c.imageModel).Msg("genai: synthetic image")
		return &Image{Data: data, MimeType: "image/png", Width: w, Height: h, Synthetic: true}, nil
	}

	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if aspect = strings.TrimSpace(aspect); aspect != "" {
		payload.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: aspect}
	}
	var resp generateContentResponse
	if err := c.invoke(ctx, http.MethodPost, "/models/"+c.imageModel+":generateContent", payload, &resp); err != nil {
		return nil, err
	}
	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return nil, retry.Permanent(fmt.Errorf("%w: image prompt blocked (%s)", domain.ErrContentPolicy, reason))
	}
	for _, cand := range resp.Candidates {
		if blockedFinish(cand.FinishReason) {
			return nil, retry.Permanent(fmt.Errorf("%w: image generation stopped (%s)", domain.ErrContentPolicy, cand.FinishReason))
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, retry.Permanent(fmt.Errorf("gemini: decode inline image: %w", err))
			}
			w, h := decodeImageDimensions(data)
			return &Image{Data: data, MimeType: p.InlineData.MimeType, Width: w, Height: h}, nil
		}
	}
	return nil, retry.Transient(errors.New("gemini: response contained no image"))
}

// StartVideo submits a Veo generation and returns the operation name.
func (c *Client) StartVideo(ctx context.Context, prompt, aspect string, seconds int) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", retry.Permanent(fmt.Errorf("%w: video prompt is empty", domain.ErrValidation))
	}
	if c.Synthetic() {
		name := syntheticPrefix + deterministicSeed(c.videoModel, prompt, aspect, seconds, c.now().UnixNano())
		c.mu.Lock()
		c.synthetic[name] = &syntheticOp{prompt: prompt, started: c.now()}
		c.mu.Unlock()
		c.logger.Debug().Str("operation", name).Msg("genai: synthetic video started")
		return name, nil
	}

	payload := predictRequest{
		Instances: []videoInstance{{Prompt: prompt}},
		Parameters: videoParameters{
			AspectRatio:     videoAspect(aspect),
			DurationSeconds: ClipSeconds(seconds),
		},
	}
	var op operationResponse
	if err := c.invoke(ctx, http.MethodPost, "/models/"+c.videoModel+":predictLongRunning", payload, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", retry.Transient(errors.New("gemini: predictLongRunning returned no operation"))
	}
	return op.Name, nil
}

// VideoOperation fetches the state of a video operation.
func (c *Client) VideoOperation(ctx context.Context, name string) (*Operation, error) {
	if strings.HasPrefix(name, syntheticPrefix) {
		return c.syntheticOperation(name)
	}
	var op operationResponse
	if err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimLeft(name, "/"), nil, &op); err != nil {
		return nil, err
	}
	out := &Operation{Name: firstNonEmpty(op.Name, name), Done: op.Done}
	if !op.Done {
		return out, nil
	}
	if op.Error != nil {
		// code 1 is CANCELLED in google.rpc.Code
		if op.Error.Code == 1 {
			out.Cancelled = true
		}
		out.Error = fmt.Errorf("veo operation failed: %s", op.Error.Message)
		return out, nil
	}
	gen := op.Response.GenerateVideoResponse
	if len(gen.RAIMediaFilteredReasons) > 0 {
		out.Error = fmt.Errorf("%w: %s", domain.ErrContentPolicy, strings.Join(gen.RAIMediaFilteredReasons, "; "))
		return out, nil
	}
	for _, sample := range gen.GeneratedSamples {
		if sample.Video.URI != "" {
			out.VideoURI = sample.Video.URI
			out.MimeType = firstNonEmpty(sample.Video.MimeType, "video/mp4")
			return out, nil
		}
	}
	out.Error = errors.New("veo operation finished without a video")
	return out, nil
}

// CancelOperation asks the backend to stop a running operation.
func (c *Client) CancelOperation(ctx context.Context, name string) error {
	if strings.HasPrefix(name, syntheticPrefix) {
		c.mu.Lock()
		defer c.mu.Unlock()
		op, ok := c.synthetic[name]
		if !ok {
			return retry.Permanent(fmt.Errorf("%w: operation %s", domain.ErrNotFound, name))
		}
		op.cancelled = true
		return nil
	}
	return c.invoke(ctx, http.MethodPost, "/"+strings.TrimLeft(name, "/")+":cancel", struct{}{}, nil)
}

// Download fetches a generated file.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, syntheticScheme) {
		seed := strings.TrimPrefix(uri, syntheticScheme)
		return renderSyntheticVideo(seed), "text/plain; charset=utf-8", nil
	}
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", retry.Permanent(fmt.Errorf("create download request: %w", err))
	}
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", retry.FromResponse(providerName, resp, string(body))
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", transportError(err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) syntheticOperation(name string) (*Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.synthetic[name]
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("%w: operation %s", domain.ErrNotFound, name))
	}
	out := &Operation{Name: name}
	switch {
	case op.cancelled:
		out.Done = true
		out.Cancelled = true
		out.Error = errors.New("veo operation cancelled")
	case c.now().Sub(op.started) >= c.latency:
		out.Done = true
		out.VideoURI = syntheticScheme + deterministicSeed(name, op.prompt)
		out.MimeType = "text/plain"
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr errorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return retry.FromResponse(providerName, resp, msg)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Transient(fmt.Errorf("decode gemini response: %w", err))
	}
	return nil
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return retry.Transient(fmt.Errorf("gemini request: %w", err))
}

func blockedFinish(reason string) bool {
	switch reason {
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII", "IMAGE_SAFETY":
		return true
	}
	return false
}

// ClipSeconds clamps a requested length to what one Veo clip supports.
func ClipSeconds(seconds int) int {
	if seconds <= 0 || seconds > maxClipSeconds {
		return maxClipSeconds
	}
	if seconds < minClipSeconds {
		return minClipSeconds
	}
	return seconds
}

func videoAspect(aspect string) string {
	if strings.TrimSpace(aspect) == "9:16" {
		return "9:16"
	}
	return "16:9"
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	band := max(32, height/12)
	for y := 0; y < height; y += band * 2 {
		draw.Draw(img, image.Rect(0, y, width, min(height, y+band)), &image.Uniform{accent}, image.Point{}, draw.Over)
	}
	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func renderSyntheticVideo(seed string) []byte {
	lines := []string{
		"Synthetic Veo video placeholder",
		"Seed: " + seed,
		"",
		"Configure GEMINI_API_KEY to render real clips.",
	}
	return []byte(strings.Join(lines, "\n"))
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(hasher, "%v|", p)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:5":
		return 1024, 1280
	case "3:2":
		return 1536, 1024
	case "4:3":
		return 1024, 768
	default:
		return 1024, 1024
	}
}
