// Package bootstrap assembles stores, providers and services from Config.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"contentforge/internal/adapter/memstore"
	"contentforge/internal/adapter/repo"
	"contentforge/internal/domain"
	"contentforge/internal/generation"
	"contentforge/internal/infra"
	"contentforge/internal/infra/credentials"
	"contentforge/internal/providers/genai"
	"contentforge/internal/providers/image"
	"contentforge/internal/providers/llm"
	"contentforge/internal/providers/qwen"
	"contentforge/internal/providers/search"
	"contentforge/internal/providers/text"
	"contentforge/internal/providers/video"
	"contentforge/internal/research"
	"contentforge/internal/retry"
	"contentforge/internal/storage"
	"contentforge/internal/templates"
)

// Stores groups the repositories every process needs.
type Stores struct {
	Projects    domain.ProjectRepository
	Jobs        domain.JobRepository
	Credentials *credentials.Store
	Pool        *pgxpool.Pool
}

func (s *Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Ping reports database health; in-memory stores are always healthy.
func (s *Stores) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// OpenStores uses Postgres when DATABASE_URL is set and in-memory stores
// otherwise. The schema is applied on every start.
func OpenStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Stores, error) {
	if !cfg.HasDatabase() {
		logger.Warn().Msg("bootstrap: DATABASE_URL not set, using in-memory stores")
		return &Stores{Projects: memstore.NewProjectStore(), Jobs: memstore.NewJobStore()}, nil
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	if err := repo.EnsureSchema(ctx, runner); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Stores{
		Projects:    repo.NewProjectRepository(runner),
		Jobs:        repo.NewJobRepository(runner),
		Credentials: credentials.NewStore(runner),
		Pool:        pool,
	}, nil
}

// Services is the wired application.
type Services struct {
	Research   *research.Service
	Generation *generation.Manager
	Refresher  *generation.Refresher
	Catalog    *templates.Catalog
	Files      *storage.FileStore
}

// Wait blocks until background research runs and generation dispatches end.
func (s *Services) Wait() {
	s.Research.Wait()
	s.Generation.Wait()
}

// Build constructs providers and services over stores.
func Build(ctx context.Context, cfg *infra.Config, stores *Stores, logger infra.Logger) (*Services, error) {
	keys := keyResolver{ctx: ctx, store: stores.Credentials}
	policy := retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		JitterFrac:  0.2,
	}

	searcher, err := newSearchProvider(ctx, cfg, keys)
	if err != nil {
		return nil, err
	}
	completer, err := newCompleter(cfg, keys)
	if err != nil {
		return nil, err
	}

	collector := research.NewCollector(searcher, stores.Projects, policy, logger)
	structurer := research.NewStructurer(completer, policy, logger, cfg.StructuringMaxChars)
	researchSvc := research.NewService(stores.Projects, collector, structurer, logger, research.WithRunTimeout(cfg.ResearchTimeout))

	var style *templates.Style
	if cfg.BrandConfigPath != "" {
		if style, err = templates.LoadStyle(cfg.BrandConfigPath); err != nil {
			return nil, fmt.Errorf("load brand style: %w", err)
		}
	}
	catalog := templates.NewCatalog(style)

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}

	geminiKey, err := keys.resolve(credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	media, err := genai.NewClient(genai.Options{
		APIKey:     geminiKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.GeminiImageModel,
		VideoModel: cfg.VeoModel,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if media.Synthetic() {
		logger.Warn().Msg("bootstrap: no gemini key, image and video backends run in synthetic mode")
	}

	images, err := newImageGenerator(cfg, keys, media, logger)
	if err != nil {
		return nil, err
	}

	backends := []generation.Backend{
		text.NewBackend(completer),
		image.NewBackend(images, files),
		video.NewBackend(media, files),
	}
	manager, err := generation.NewManager(stores.Jobs, stores.Projects, catalog, backends, logger,
		generation.WithPolicy(policy),
		generation.WithTimeout(domain.KindImage, cfg.ImageJobTimeout),
		generation.WithTimeout(domain.KindVideo, cfg.VideoJobTimeout),
	)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("search", searcher.Name()).
		Str("llm", completer.Name()).
		Str("image", images.Name()).
		Msg("bootstrap: providers ready")

	return &Services{
		Research:   researchSvc,
		Generation: manager,
		Refresher:  generation.NewRefresher(manager, stores.Jobs, logger, cfg.JobPollInterval, cfg.RefreshBatchSize),
		Catalog:    catalog,
		Files:      files,
	}, nil
}

// keyResolver prefers environment keys over stored ones.
type keyResolver struct {
	ctx   context.Context
	store *credentials.Store
}

func (k keyResolver) resolve(provider, fromEnv string) (string, error) {
	key, err := k.store.Resolve(k.ctx, provider, fromEnv)
	if err != nil {
		return "", fmt.Errorf("resolve %s api key: %w", provider, err)
	}
	return key, nil
}

func newSearchProvider(ctx context.Context, cfg *infra.Config, keys keyResolver) (search.Provider, error) {
	switch cfg.ResearchProvider {
	case credentials.ProviderPerplexity:
		key, err := keys.resolve(credentials.ProviderPerplexity, cfg.PerplexityAPIKey)
		if err != nil {
			return nil, err
		}
		return search.NewPerplexity(search.Options{
			APIKey:        key,
			BaseURL:       cfg.PerplexityBaseURL,
			Model:         cfg.PerplexityModel,
			RatePerSecond: float64(cfg.SearchRatePerSecond),
		})
	case credentials.ProviderGemini:
		key, err := keys.resolve(credentials.ProviderGemini, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return search.NewGeminiGrounded(ctx, search.Options{
			APIKey:        key,
			Model:         cfg.GeminiSearchModel,
			RatePerSecond: float64(cfg.SearchRatePerSecond),
		})
	default:
		key, err := keys.resolve(credentials.ProviderTavily, cfg.TavilyAPIKey)
		if err != nil {
			return nil, err
		}
		return search.NewTavily(search.Options{
			APIKey:        key,
			BaseURL:       cfg.TavilyBaseURL,
			RatePerSecond: float64(cfg.SearchRatePerSecond),
		})
	}
}

type completer interface {
	Name() string
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

func newCompleter(cfg *infra.Config, keys keyResolver) (completer, error) {
	switch cfg.LLMProvider {
	case credentials.ProviderOpenAI:
		key, err := keys.resolve(credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		return llm.NewOpenAICompleter(llm.Options{
			APIKey:       key,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			Temperature:  cfg.LLMTemperature,
		})
	case credentials.ProviderHermes:
		key, err := keys.resolve(credentials.ProviderHermes, cfg.HermesAPIKey)
		if err != nil {
			return nil, err
		}
		return llm.NewHermesCompleter(llm.Options{
			APIKey:      key,
			Model:       cfg.HermesModel,
			BaseURL:     cfg.HermesBaseURL,
			Temperature: cfg.LLMTemperature,
		})
	default:
		key, err := keys.resolve(credentials.ProviderGemini, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return llm.NewGeminiCompleter(keys.ctx, llm.Options{
			APIKey:      key,
			Model:       cfg.GeminiModel,
			BaseURL:     cfg.GeminiBaseURL,
			Temperature: cfg.LLMTemperature,
		})
	}
}

func newImageGenerator(cfg *infra.Config, keys keyResolver, media *genai.Client, logger infra.Logger) (image.Generator, error) {
	if cfg.ImageProvider != credentials.ProviderQwen {
		return image.NewGeminiGenerator(media), nil
	}
	key, err := keys.resolve(credentials.ProviderQwen, cfg.QwenAPIKey)
	if err != nil {
		return nil, err
	}
	client, err := qwen.NewClient(qwen.Options{
		APIKey:       key,
		BaseURL:      cfg.QwenBaseURL,
		Model:        cfg.QwenModel,
		PromptExtend: cfg.QwenPromptExtend,
		Watermark:    cfg.QwenWatermark,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return image.NewQwenGenerator(client), nil
}
