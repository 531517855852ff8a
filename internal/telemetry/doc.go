// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry prices AI usage and records it.
//
// # Key Types
//
//   - UsageRecord: One billable AI call (chat completion, transcription, speech)
//   - Tracker: Normalises records, persists them and keeps running totals
//   - Store: Append-only persistence (SQLite, Postgres or memory)
//
// # Usage
//
//	store, err := telemetry.OpenSQLiteStore(path)
//	tracker := telemetry.NewTracker(store, logger)
//	err = tracker.RecordUsage(ctx, telemetry.UsageRecord{
//	    Service:      telemetry.ServiceChat,
//	    ModelID:      "gpt-4o-mini",
//	    Provider:     "openai",
//	    InputTokens:  1000,
//	    OutputTokens: 500,
//	    CostUSD:      telemetry.TokenCost("gpt-4o-mini", 1000, 500),
//	})
//
// # Pricing
//
// Prices are USD per million tokens, or per unit for fixed-rate services.
// Unknown models price at zero. All costs are rounded to six decimal places
// and never negative.
package telemetry
