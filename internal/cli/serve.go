// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/doubtrun/internal/config"
	"github.com/jeranaias/doubtrun/internal/server"
)

// shutdownTimeout bounds draining in-flight requests on exit.
const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Example: `  doubtrun serve
  doubtrun serve --addr :8080
  doubtrun serve --offline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions, addr string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := opts.openApp(ctx, false)
	if err != nil {
		return err
	}
	logger := app.Logger
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("SHUTDOWN_CLOSE_FAILED", zap.Error(err))
		}
		_ = logger.Sync()
	}()

	cfg := app.Config
	if addr != "" {
		cfg.Server.Addr = addr
	}

	srv := server.New(cfg.Server, cfg.RateLimit, server.Deps{
		Resolver: app.Resolver,
		Router:   app.Router,
		Tracker:  app.Tracker,
		Limiter:  app.Limiter,
		Logger:   logger.Logger,
		Version:  Version,
	})

	if watcher := startConfigWatcher(opts, app, srv); watcher != nil {
		defer watcher.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("SERVER_STOPPED", zap.String("usage", app.Tracker.Snapshot().String()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startConfigWatcher reloads models, log level, offline mode and rate
// limits when the config file changes. It returns nil when the file
// cannot be watched; the server then runs with its startup config.
func startConfigWatcher(opts *rootOptions, app *App, srv *server.Server) *config.Watcher {
	path, err := opts.resolvedConfigPath()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		app.Logger.Debug("CONFIG_WATCH_DISABLED", zap.String("path", path), zap.Error(err))
		return nil
	}

	watcher, err := config.NewWatcher(path, config.DefaultDebounce, func(cfg *config.Config) {
		opts.applyFlags(cfg)
		app.Reload(cfg)
		srv.ApplyRateLimits(cfg.RateLimit)
		config.SetGlobal(cfg)
	}, app.Logger.Logger)
	if err != nil {
		app.Logger.Warn("CONFIG_WATCH_DISABLED", zap.String("path", path), zap.Error(err))
		return nil
	}
	watcher.Start()
	return watcher
}
