// Package main is the entry point for the stories server.
// The server stores private editor sessions and public stories in an
// S3-compatible bucket and authenticates users against an OIDC provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/prn-tf/mvstories/internal/auth"
	"github.com/prn-tf/mvstories/internal/cache/memory"
	"github.com/prn-tf/mvstories/internal/cache/redis"
	"github.com/prn-tf/mvstories/internal/config"
	"github.com/prn-tf/mvstories/internal/handler"
	"github.com/prn-tf/mvstories/internal/logging"
	"github.com/prn-tf/mvstories/internal/metrics"
	"github.com/prn-tf/mvstories/internal/repository"
	"github.com/prn-tf/mvstories/internal/service"
	"github.com/prn-tf/mvstories/internal/storage"
	"github.com/prn-tf/mvstories/internal/validation"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	pflag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting stories server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	// Object store
	store, err := storage.NewFromConfig(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	created, err := storage.EnsureBucket(ctx, store)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if created {
		logger.Info().Str("bucket", cfg.Storage.S3.Bucket).Msg("created bucket")
	}

	// Identity cache
	identityCache, closeCache, err := newCache(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer closeCache()

	var validator auth.TokenValidator = auth.NewUserInfoValidator(cfg.Auth.UserInfoURL, cfg.Auth.Timeout, logger)
	if identityCache != nil && cfg.Auth.IdentityCacheTTL > 0 {
		validator = auth.NewCachingValidator(validator, identityCache, cfg.Auth.IdentityCacheTTL, logger)
		logger.Info().
			Str("backend", cfg.Cache.Backend).
			Dur("ttl", cfg.Auth.IdentityCacheTTL).
			Msg("identity cache enabled")
	}

	// Services
	inputs := validation.New(validation.NewLimits(cfg.Limits.MaxUploadSizeMB, cfg.Limits.InflateRatio))
	objects := repository.NewObjectRepository(store, logger)
	quota := service.NewQuotaService(objects, cfg.Limits.MaxSessionsPerUser, cfg.Limits.MaxStoriesPerUser, logger)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	router := handler.NewRouter(handler.RouterConfig{
		SessionHandler: handler.NewSessionHandler(service.NewSessionService(objects, quota, logger), inputs, logger),
		StoryHandler:   handler.NewStoryHandler(service.NewStoryService(objects, quota, inputs, logger), inputs, cfg.BaseURL, logger),
		UserHandler:    handler.NewUserHandler(service.NewUserService(objects, quota, logger), logger),
		Validator:      validator,
		AllowedOrigins: cfg.CORS.Origins(),
		MaxUploadBytes: cfg.Limits.MaxUploadBytes(),
		MetricsPath:    metricsPath,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("storage", cfg.Storage.Backend).
			Int("max_upload_mb", cfg.Limits.MaxUploadSizeMB).
			Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// newCache builds the configured identity cache. The returned cache is nil
// when caching is disabled.
func newCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (repository.Cache, func(), error) {
	switch cfg.Backend {
	case "memory":
		c := memory.NewCache(time.Minute)
		return c, c.Stop, nil
	case "redis":
		c, err := redis.NewCache(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, func() {}, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
