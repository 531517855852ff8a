// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Builds the resolution pipeline from configuration.
//
// serve, ask and chat all run the same pipeline; only the front end
// differs. App owns every long-lived resource and closes them in reverse
// order of construction.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jeranaias/doubtrun/internal/cloud"
	"github.com/jeranaias/doubtrun/internal/config"
	"github.com/jeranaias/doubtrun/internal/logging"
	"github.com/jeranaias/doubtrun/internal/offline"
	"github.com/jeranaias/doubtrun/internal/ratelimit"
	"github.com/jeranaias/doubtrun/internal/resolve"
	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/telemetry"
)

// storeConnectTimeout bounds store and redis connection attempts.
const storeConnectTimeout = 10 * time.Second

// App is the assembled pipeline.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Tracker  *telemetry.Tracker
	Registry *cloud.Registry
	Router   *router.Router
	Resolver *resolve.Resolver
	Limiter  ratelimit.Backend

	redis *redis.Client
}

// NewApp wires every component cfg describes. The caller must Close the
// returned App.
func NewApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	offline.SetOfflineMode(cfg.Routing.OfflineMode)

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	limiter, client, err := NewLimiter(ctx, cfg.RateLimit)
	if err != nil {
		store.Close()
		return nil, err
	}

	rt := router.New(cfg.Models.RouterModels())
	registry := NewRegistry(cfg.Providers, logger.Logger)
	tracker := telemetry.NewTracker(store, logger.Logger)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Tracker:  tracker,
		Registry: registry,
		Router:   rt,
		Resolver: resolve.New(rt, registry, tracker,
			resolve.WithCallTimeout(cfg.Resolve.CallTimeout()),
			resolve.WithTemperature(cfg.Resolve.Temperature),
			resolve.WithLogger(logger.Logger),
		),
		Limiter: limiter,
		redis:   client,
	}

	logger.Info("PIPELINE_READY",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("ratelimit", cfg.RateLimit.Backend),
		zap.Strings("providers", registry.Names()),
		zap.Bool("offline_mode", cfg.Routing.OfflineMode),
	)
	return app, nil
}

// Reload applies the hot-reloadable parts of cfg: model table, log level
// and offline mode. Storage, providers and listeners need a restart.
func (a *App) Reload(cfg *config.Config) {
	a.Router.SetModels(cfg.Models.RouterModels())
	a.Logger.Apply(cfg.Logging)
	offline.SetOfflineMode(cfg.Routing.OfflineMode)
	a.Config = cfg
}

// Close releases the store and the redis client.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.Tracker.Close())
	return errors.Join(errs...)
}

// =============================================================================
// COMPONENT CONSTRUCTORS
// =============================================================================

// OpenStore opens the usage store named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (telemetry.Store, error) {
	switch cfg.Driver {
	case "memory":
		return telemetry.NewMemoryStore(), nil

	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			p, err := config.DefaultSQLitePath()
			if err != nil {
				return nil, &StorageError{Backend: "sqlite", Err: err}
			}
			path = p
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, &StorageError{Backend: "sqlite", Err: err}
		}
		store, err := telemetry.OpenSQLiteStore(path)
		if err != nil {
			return nil, &StorageError{Backend: "sqlite", Err: err}
		}
		return store, nil

	case "postgres":
		ctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		store, err := telemetry.OpenPostgresStore(ctx, telemetry.PostgresConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, &StorageError{Backend: "postgres", Err: err}
		}
		return store, nil

	default:
		return nil, &ConfigError{Err: fmt.Errorf("unknown storage driver %q", cfg.Driver)}
	}
}

// NewLimiter builds the doubt quota backend. The redis client is returned
// so the caller can close it; it is nil for the memory backend.
func NewLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Backend, *redis.Client, error) {
	switch cfg.Backend {
	case "memory", "":
		return ratelimit.New(), nil, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, &StorageError{Backend: "redis", Err: err}
		}
		return ratelimit.NewRedisLimiter(client, cfg.RedisKeyPrefix), client, nil

	default:
		return nil, nil, &ConfigError{Err: fmt.Errorf("unknown rate limit backend %q", cfg.Backend)}
	}
}

// NewRegistry builds both provider adapters. Each is wrapped in a circuit
// breaker when enabled, then in the offline guard, so a blocked call never
// counts against the breaker.
func NewRegistry(cfg config.ProvidersConfig, logger *zap.Logger) *cloud.Registry {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	openai := cloud.NewOpenAIClient(cfg.OpenAI.APIKey).
		WithBaseURL(cfg.OpenAI.BaseURL).
		WithTimeout(timeout).
		WithMaxAttempts(cfg.MaxAttempts).
		WithLogger(logger)
	anthropic := cloud.NewAnthropicClient(cfg.Anthropic.APIKey).
		WithBaseURL(cfg.Anthropic.BaseURL).
		WithTimeout(timeout).
		WithMaxAttempts(cfg.MaxAttempts).
		WithLogger(logger)

	wrap := func(p cloud.Provider, baseURL string) cloud.Provider {
		if cfg.Breaker.Enabled {
			p = cloud.NewBreaker(p, cloud.BreakerSettings{
				ConsecutiveFailures: uint32(cfg.Breaker.ConsecutiveFailures),
				OpenTimeout:         time.Duration(cfg.Breaker.OpenTimeoutSecs) * time.Second,
			}, logger)
		}
		return offline.NewGuard(p, baseURL)
	}

	return cloud.NewRegistry(
		wrap(openai, cfg.OpenAI.BaseURL),
		wrap(anthropic, cfg.Anthropic.BaseURL),
	)
}
