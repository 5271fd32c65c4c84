package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"contentforge/internal/bootstrap"
	"contentforge/internal/domain"
	"contentforge/internal/http/handlers"
	httpapi "contentforge/internal/http/httpapi"
	"contentforge/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open stores")
	}
	defer stores.Close()

	svc, err := bootstrap.Build(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}

	depth := domain.DepthDeep
	if !cfg.DeepResearch {
		depth = domain.DepthShallow
	}
	app := &handlers.App{
		Research:     svc.Research,
		Generation:   svc.Generation,
		Templates:    svc.Catalog,
		Logger:       logger,
		DefaultDepth: depth,
		Ready:        stores.Ping,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		StaticDir:       svc.Files.BasePath(),
	})
	server := infra.NewHTTPServer(cfg, router)

	// Jobs left running by a previous process are settled by the refresher.
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		_ = svc.Refresher.Run(refreshCtx)
	}()

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	stopRefresh()
	<-refreshDone
	svc.Wait()
	logger.Info().Msg("server stopped")
}
