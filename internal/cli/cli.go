// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, global flags and configuration loading.
//
// Global flags:
//   --config PATH   Config file (default ~/.doubtrun/config.toml)
//   --offline       Force offline mode for this run
//   --json          Machine-readable output
//   --verbose, -v   Log at debug level to stderr

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/doubtrun/internal/config"
	"github.com/jeranaias/doubtrun/internal/logging"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the global flag values.
type rootOptions struct {
	configPath string
	offline    bool
	jsonOutput bool
	verbose    bool
}

// NewRootCommand builds the doubtrun command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "doubtrun",
		Short: "Route student doubts to the right model",
		Long: `doubtrun answers student questions by grading their difficulty,
tagging their subject, and sending each one to the cheapest model tier
that can handle it. A failed call falls back once to the next tier, and
an offline study tip is returned when no provider can answer.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.doubtrun/config.toml)")
	flags.BoolVar(&opts.offline, "offline", false, "block non-local providers for this run")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newClassifyCmd(opts),
		newCostCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return ExecuteContext(context.Background(), os.Args[1:])
}

// ExecuteContext runs the command tree with args.
func ExecuteContext(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		jsonMode, _ := root.PersistentFlags().GetBool("json")
		if jsonMode {
			DisplayError(root.OutOrStdout(), err, true)
		} else {
			DisplayError(root.ErrOrStderr(), err, false)
		}
		return GetExitCode(err)
	}
	return ExitSuccess
}

// =============================================================================
// CONFIG LOADING
// =============================================================================

// resolvedConfigPath returns --config or the default location.
func (o *rootOptions) resolvedConfigPath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPath()
}

// loadConfig loads configuration and applies the global flags to it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		path, _ := o.resolvedConfigPath()
		return nil, &ConfigError{Path: path, Err: err}
	}
	o.applyFlags(cfg)
	config.SetGlobal(cfg)
	return cfg, nil
}

func (o *rootOptions) applyFlags(cfg *config.Config) {
	if o.offline {
		cfg.Routing.OfflineMode = true
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
}

// newLogger builds the logger for interactive commands. They log in
// console format at warn unless --verbose, so answers stay readable.
func (o *rootOptions) newLogger(cfg *config.Config, interactive bool) (*logging.Logger, error) {
	logCfg := cfg.Logging
	if interactive {
		logCfg.Format = "console"
		if !o.verbose {
			logCfg.Level = "warn"
		}
	}
	logger, err := logging.New(logCfg, Version)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("build logger: %w", err)}
	}
	return logger, nil
}

// openApp loads configuration and assembles the pipeline.
func (o *rootOptions) openApp(ctx context.Context, interactive bool) (*App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := o.newLogger(cfg, interactive)
	if err != nil {
		return nil, err
	}
	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}
