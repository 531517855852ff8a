// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for doubtrun.
//
// Subcommands:
//   show (default)      Display the effective configuration, secrets redacted
//   get <key>           Print one value
//   set <key> <value>   Change one value and save
//   keys                List every settable key
//   path                Show the configuration file location
//
// Examples:
//   doubtrun config set models.tier3 claude-opus-4-6
//   doubtrun config set ratelimit.doubt_limit 30
//   doubtrun config set routing.offline_mode true
//   doubtrun config get storage.driver

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/doubtrun/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), opts)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigShow(cmd.OutOrStdout(), opts)
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigGet(cmd.OutOrStdout(), opts, args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one configuration value and save",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSet(cmd.OutOrStdout(), opts, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List configuration keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				keys := config.GetAllKeys()
				if opts.jsonOutput {
					return NewJSONResponse("config keys", keys).Print(cmd.OutOrStdout())
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := opts.resolvedConfigPath()
				if err != nil {
					return &ConfigError{Err: err}
				}
				if opts.jsonOutput {
					_, statErr := os.Stat(path)
					return NewJSONResponse("config path", map[string]interface{}{
						"path":   path,
						"exists": statErr == nil,
					}).Print(cmd.OutOrStdout())
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)
	return cmd
}

func runConfigShow(w io.Writer, opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		// String already redacts and encodes as JSON.
		_, err := fmt.Fprintln(w, cfg.String())
		return err
	}

	path, _ := opts.resolvedConfigPath()
	fmt.Fprintln(w, TitleStyle.Render("doubtrun configuration"))
	fmt.Fprintln(w, RenderLabel("File")+DimStyle.Render(path))
	fmt.Fprintln(w)
	for _, key := range config.GetAllKeys() {
		fmt.Fprintln(w, RenderLabel(key, 40)+ValueStyle.Render(displayValue(cfg, key)))
	}
	return nil
}

func displayValue(cfg *config.Config, key string) string {
	v, err := cfg.Get(key)
	if err != nil {
		return "?"
	}
	s := fmt.Sprint(v)
	if config.IsSecretKey(key) && s != "" {
		return DimStyle.Render("[REDACTED]")
	}
	return s
}

func runConfigGet(w io.Writer, opts *rootOptions, key string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if _, err := cfg.Get(key); err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error(), Example: "doubtrun config keys"}
	}

	value := displayValue(cfg, key)
	if opts.jsonOutput {
		return NewJSONResponse("config get", map[string]string{"key": key, "value": value}).Print(w)
	}
	fmt.Fprintln(w, value)
	return nil
}

// runConfigSet edits the file on disk, not the effective config, so
// environment overrides are never written back.
func runConfigSet(w io.Writer, opts *rootOptions, key, value string) error {
	path, err := opts.resolvedConfigPath()
	if err != nil {
		return &ConfigError{Err: err}
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return &ConfigError{Path: path, Err: err}
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: key, Value: value, Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidateErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Field, Value: value, Reason: verrs[0].Message}
		}
		return &ConfigError{Path: path, Err: err}
	}

	if err := config.SaveTOML(cfg, path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if opts.jsonOutput {
		return NewJSONResponse("config set", map[string]string{"key": key, "value": displayValue(cfg, key)}).Print(w)
	}
	fmt.Fprintf(w, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, displayValue(cfg, key))
	return nil
}
