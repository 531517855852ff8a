// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router classifies question difficulty and maps it to a model tier.
//
// Routes questions to the appropriate tier based on lexical complexity:
// easy/medium -> tier 1, hard -> tier 2, expert -> tier 3.
//
// # Key Types
//
//   - Assessment: Level, raw score and the reasons that produced it
//   - Level: Difficulty level (Easy, Medium, Hard, Expert)
//   - ModelConfig: Provider, model, tier and output cap for one level
//   - Router: The static routing table plus fallback lookups
//
// # Usage
//
//	r := router.New(router.DefaultModels())
//	a := router.Classify(question)
//	cfg := r.SelectModel(a.Level)
//	if next, ok := r.NextFallback(a.Level); ok {
//	    // retry once with next
//	}
//
// # Fallback
//
// Fallback walks FallbackChain one step. It always moves to an equal or more
// capable tier, so cost is only traded for availability on the failure path.
package router
