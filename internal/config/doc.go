// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates doubtrun configuration.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ModelsConfig: Per-tier model identifiers fed to the router
//   - ProvidersConfig: API keys, base URLs and breaker settings
//   - RateLimitConfig: Doubt quota and limiter backend
//   - Watcher: fsnotify-based reload of the config file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (DOUBTRUN_*, TIER1_MODEL, OPENAI_API_KEY, ...)
//   - A .env file in the working directory
//   - ~/.doubtrun/config.toml (or the path given with --config)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := router.New(cfg.Models.RouterModels())
package config
