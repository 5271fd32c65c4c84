package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string `validate:"required"`
	Port           string `validate:"required,numeric"`
	DatabaseURL    string
	StoragePath    string `validate:"required"`
	StorageBaseURL string `validate:"required,url"`

	ResearchProvider    string `validate:"oneof=tavily perplexity gemini"`
	DeepResearch        bool
	TavilyAPIKey        string
	TavilyBaseURL       string `validate:"required,url"`
	PerplexityAPIKey    string
	PerplexityModel     string
	PerplexityBaseURL   string `validate:"required,url"`
	SearchRatePerSecond int    `validate:"min=1,max=100"`
	ResearchTimeout     time.Duration
	StructuringMaxChars int `validate:"min=1000"`

	LLMProvider       string  `validate:"oneof=gemini openai hermes"`
	LLMTemperature    float64 `validate:"min=0,max=2"`
	GeminiAPIKey      string
	GeminiModel       string `validate:"required"`
	GeminiBaseURL     string `validate:"required,url"`
	GeminiImageModel  string `validate:"required"`
	VeoModel          string `validate:"required"`
	GeminiSearchModel string `validate:"required"`
	OpenAIAPIKey      string
	OpenAIModel       string `validate:"required"`
	OpenAIBaseURL     string `validate:"required,url"`
	OpenAIOrg         string
	HermesAPIKey      string
	HermesModel       string `validate:"required"`
	HermesBaseURL     string `validate:"required,url"`
	BrandConfigPath   string

	ImageProvider    string `validate:"oneof=gemini qwen"`
	QwenAPIKey       string
	QwenModel        string `validate:"required"`
	QwenBaseURL      string `validate:"required,url"`
	QwenPromptExtend bool
	QwenWatermark    bool

	RetryMaxAttempts int `validate:"min=1,max=10"`
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ImageJobTimeout  time.Duration
	VideoJobTimeout  time.Duration
	JobPollInterval  time.Duration
	RefreshBatchSize int `validate:"min=1,max=500"`

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int `validate:"min=1"`
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),

		ResearchProvider:    strings.ToLower(getEnv("RESEARCH_PROVIDER", getEnv("DEFAULT_RESEARCH_SERVICE", "tavily"))),
		DeepResearch:        getEnvBool("DEEP_RESEARCH_MODE", true),
		TavilyAPIKey:        os.Getenv("TAVILY_API_KEY"),
		TavilyBaseURL:       getEnv("TAVILY_BASE_URL", "https://api.tavily.com"),
		PerplexityAPIKey:    os.Getenv("PERPLEXITY_API_KEY"),
		PerplexityModel:     getEnv("PERPLEXITY_MODEL", "sonar"),
		PerplexityBaseURL:   getEnv("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
		SearchRatePerSecond: getEnvInt("SEARCH_RATE_PER_SECOND", 2),
		ResearchTimeout:     time.Second * time.Duration(getEnvInt("RESEARCH_TIMEOUT_SECONDS", 300)),
		StructuringMaxChars: getEnvInt("STRUCTURING_MAX_CHARS", 24000),
		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		LLMTemperature:      getEnvFloat("LLM_TEMPERATURE", 0.7),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiImageModel:    getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		VeoModel:            getEnv("VEO_MODEL", "veo-3.0-generate-001"),
		GeminiSearchModel:   getEnv("GEMINI_SEARCH_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:           os.Getenv("OPENAI_ORG"),
		HermesAPIKey:        os.Getenv("HERMES_API_KEY"),
		HermesModel:         getEnv("HERMES_MODEL", "Hermes-4-70B"),
		HermesBaseURL:       getEnv("HERMES_BASE_URL", "https://inference-api.nousresearch.com/v1"),
		BrandConfigPath:     os.Getenv("BRAND_CONFIG_PATH"),

		ImageProvider:    strings.ToLower(getEnv("IMAGE_PROVIDER", "gemini")),
		QwenAPIKey:       os.Getenv("QWEN_API_KEY"),
		QwenModel:        getEnv("QWEN_IMAGE_MODEL", "qwen-image-plus"),
		QwenBaseURL:      getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenPromptExtend: getEnvBool("QWEN_PROMPT_EXTEND", true),
		QwenWatermark:    getEnvBool("QWEN_WATERMARK", false),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 4000)),
		RetryMaxDelay:    time.Millisecond * time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 10000)),
		ImageJobTimeout:  time.Second * time.Duration(getEnvInt("IMAGE_JOB_TIMEOUT_SECONDS", 180)),
		VideoJobTimeout:  time.Second * time.Duration(getEnvInt("VIDEO_JOB_TIMEOUT_SECONDS", 900)),
		JobPollInterval:  time.Second * time.Duration(getEnvInt("JOB_POLL_INTERVAL_SECONDS", 5)),
		RefreshBatchSize: getEnvInt("JOB_REFRESH_BATCH_SIZE", 25),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// HasDatabase reports whether Postgres-backed stores should be used.
func (c *Config) HasDatabase() bool {
	return c != nil && c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
