// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the doubtrun command line.
//
// # Commands
//
//   - serve: HTTP API with per-actor quotas and config hot reload
//   - ask: resolve one question, rendered as markdown on a terminal
//   - chat: interactive session where each question follows up the last
//   - classify: difficulty, subject and routing without a provider call
//   - cost: usage totals, recent records and the price table
//   - config: show, get and set configuration values
//
// Every command accepts --json for machine-readable output and --offline
// to block non-local providers. The pipeline behind serve, ask and chat
// is assembled by NewApp from the loaded configuration.
package cli
