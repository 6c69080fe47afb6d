package main

import (
	"context"
	"os"
	"time"

	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/gateway"
	apphttp "tally/internal/http"
	"tally/internal/identity"
	"tally/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err == nil {
		err = backendCfg.Validate()
	}
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// background consumers stop with this context
	appCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	result, err := backend.NewFactory(logger).CreateBackend(appCtx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	gw := gateway.New(result.Backend, gateway.Config{
		BatchSize:   cfg.ClearBatchSize,
		Concurrency: cfg.ClearConcurrency,
		Timeout:     cfg.MutationTimeout,
	}, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		CORSOrigins:       cfg.CORSOrigins,
		CurrencySymbol:    cfg.CurrencySymbol,
		CacheSize:         cfg.ViewCacheSize,
		CacheTTL:          cfg.ViewCacheTTL,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, result.Backend, gw, identity.NewVerifier(cfg.JWTSecret), logger)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		stopBackground()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err.Error())
			}
		}
	})

	logger.Info("Starting tally server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", cfg.AMQPURL != "")
	if err := srv.Start(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
