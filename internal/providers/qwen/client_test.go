package qwen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"contentforge/internal/domain"
	"contentforge/internal/retry"
)

func TestGenerateImageDownloadsResult(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/aigc/multimodal-generation/generation":
			if r.Header.Get("Authorization") != "Bearer k" {
				t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
			}
			var req generationRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Parameters.Size != "1664*928" || req.Parameters.Seed == nil || *req.Parameters.Seed != 7 {
				t.Errorf("parameters = %+v", req.Parameters)
			}
			_, _ = io.WriteString(w, `{"output":{"choices":[{"message":{"content":[{"image":"`+srv.URL+`/img.png"}]}}]},"usage":{"width":1664,"height":928},"request_id":"r1"}`)
		case "/img.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = io.WriteString(w, "png")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, _ := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	img, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "banner", AspectRatio: "16:9", Seed: 7})
	if err != nil {
		t.Fatalf("GenerateImage error: %v", err)
	}
	if string(img.Data) != "png" || img.MimeType != "image/png" || img.Width != 1664 {
		t.Fatalf("image = %+v", img)
	}
}

func TestGenerateImageErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		retryable bool
		policy    bool
	}{
		{name: "throttled", status: http.StatusTooManyRequests, body: `{"code":"Throttling","message":"slow down"}`, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"code":"InvalidParameter","message":"size"}`},
		{name: "inspection", status: http.StatusBadRequest, body: `{"code":"DataInspectionFailed","message":"unsafe"}`, policy: true},
		{name: "in-body internal", status: http.StatusOK, body: `{"code":"InternalError","message":"try later"}`, retryable: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			c, _ := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
			_, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := retry.IsRetryable(err); got != tc.retryable {
				t.Fatalf("IsRetryable = %v, want %v (%v)", got, tc.retryable, err)
			}
			if got := errors.Is(err, domain.ErrContentPolicy); got != tc.policy {
				t.Fatalf("content policy = %v, want %v", got, tc.policy)
			}
		})
	}
}

func TestMissingKeyIsPermanent(t *testing.T) {
	c, _ := NewClient(Options{})
	_, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	if !errors.Is(err, ErrMissingAPIKey) || retry.IsRetryable(err) {
		t.Fatalf("error = %v, want permanent ErrMissingAPIKey", err)
	}
}

func TestSizeFor(t *testing.T) {
	for in, want := range map[string]string{"16:9": "1664*928", "4:5": "1140*1472", "": "1328*1328", "1:1": "1328*1328"} {
		if got := SizeFor(in); !strings.Contains(got, "*") || got != want {
			t.Fatalf("SizeFor(%q) = %q, want %q", in, got, want)
		}
	}
}
