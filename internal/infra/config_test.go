package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("RESEARCH_PROVIDER", "")
	t.Setenv("DEFAULT_RESEARCH_SERVICE", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL = %q, want %q", cfg.StorageBaseURL, "http://localhost:8080/static")
	}
	if cfg.ResearchProvider != "tavily" {
		t.Fatalf("ResearchProvider = %q, want tavily", cfg.ResearchProvider)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("RetryMaxAttempts = %d, want 3", cfg.RetryMaxAttempts)
	}
	if cfg.RetryBaseDelay != 4*time.Second || cfg.RetryMaxDelay != 10*time.Second {
		t.Fatalf("retry delays = %v/%v, want 4s/10s", cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	}
	if !cfg.DeepResearch {
		t.Fatalf("DeepResearch = false, want true")
	}
	if cfg.HasDatabase() {
		t.Fatalf("HasDatabase = true with empty DATABASE_URL")
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL = %q, want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigLegacyResearchServiceKey(t *testing.T) {
	t.Setenv("RESEARCH_PROVIDER", "")
	t.Setenv("DEFAULT_RESEARCH_SERVICE", "Perplexity")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ResearchProvider != "perplexity" {
		t.Fatalf("ResearchProvider = %q, want perplexity", cfg.ResearchProvider)
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "llama-on-a-toaster")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("LoadConfig accepted an unknown LLM provider")
	}
}

func TestLoadConfigParsesOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORSAllowedOrigins) != len(want) {
		t.Fatalf("CORSAllowedOrigins = %#v, want %#v", cfg.CORSAllowedOrigins, want)
	}
	for i := range want {
		if cfg.CORSAllowedOrigins[i] != want[i] {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], want[i])
		}
	}
}

func TestLoadConfigImageProvider(t *testing.T) {
	t.Setenv("IMAGE_PROVIDER", "Qwen")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ImageProvider != "qwen" || cfg.QwenModel != "qwen-image-plus" {
		t.Fatalf("image provider = %q model %q", cfg.ImageProvider, cfg.QwenModel)
	}

	t.Setenv("IMAGE_PROVIDER", "midjourney")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("LoadConfig accepted unknown image provider")
	}
}
