package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"contentforge/internal/bootstrap"
	"contentforge/internal/infra"
)

// The worker settles running generation jobs (video operations, expired
// deadlines) for deployments where the API process does not refresh.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()
	if !cfg.HasDatabase() {
		logger.Fatal().Msg("worker requires DATABASE_URL")
	}

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

	logger.Info().
		Dur("interval", cfg.JobPollInterval).
		Int("batch", cfg.RefreshBatchSize).
		Msg("worker started")
	_ = svc.Refresher.Run(ctx)
	svc.Wait()
	logger.Info().Msg("worker stopped")
}
