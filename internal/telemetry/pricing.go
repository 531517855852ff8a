// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CostPlaces is the number of decimal places costs are rounded to.
const CostPlaces = 6

// Fixed-rate service identifiers.
const (
	ServiceWhisper = "whisper-1"
	ServiceTTS     = "tts-1"
	ServiceTTSHD   = "tts-1-hd"
)

// =============================================================================
// PRICE TABLES
// =============================================================================

// Pricing is the USD price per million tokens for one model.
type Pricing struct {
	Input  decimal.Decimal `json:"input"`
	Output decimal.Decimal `json:"output"`
}

var perMillion = decimal.NewFromInt(1_000_000)

func price(in, out string) Pricing {
	return Pricing{Input: decimal.RequireFromString(in), Output: decimal.RequireFromString(out)}
}

var tokenPricing = map[string]Pricing{
	"gpt-4o-mini":     price("0.15", "0.60"),
	"gpt-4.1":         price("2.00", "8.00"),
	"gpt-4.1-mini":    price("0.40", "1.60"),
	"gpt-4o":          price("2.50", "10.00"),
	"claude-opus-4-6": price("15.00", "75.00"),
	"claude-sonnet-4": price("3.00", "15.00"),
}

// fixedPricing is USD per unit: minutes of audio for whisper-1, thousands of
// characters for the speech models.
var fixedPricing = map[string]decimal.Decimal{
	ServiceWhisper: decimal.RequireFromString("0.006"),
	ServiceTTS:     decimal.RequireFromString("0.015"),
	ServiceTTSHD:   decimal.RequireFromString("0.030"),
}

// PricingFor returns the token pricing for a model.
func PricingFor(modelID string) (Pricing, bool) {
	p, ok := tokenPricing[modelID]
	return p, ok
}

// PricedModels returns the models with known token pricing, sorted.
func PricedModels() []string {
	out := make([]string, 0, len(tokenPricing))
	for id := range tokenPricing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// COST FUNCTIONS
// =============================================================================

// TokenCost returns (in*inputPrice + out*outputPrice) / 1M for modelID.
// Unknown models cost zero. Negative token counts are treated as zero.
func TokenCost(modelID string, inputTokens, outputTokens int) decimal.Decimal {
	p, ok := tokenPricing[modelID]
	if !ok {
		return decimal.Zero
	}
	in := decimal.NewFromInt(int64(max(inputTokens, 0)))
	out := decimal.NewFromInt(int64(max(outputTokens, 0)))
	return RoundCost(in.Mul(p.Input).Add(out.Mul(p.Output)).Div(perMillion))
}

// FixedServiceCost returns quantity units of a fixed-rate service.
// Unknown services cost zero.
func FixedServiceCost(service string, quantity decimal.Decimal) decimal.Decimal {
	rate, ok := fixedPricing[service]
	if !ok {
		return decimal.Zero
	}
	return RoundCost(quantity.Mul(rate))
}

// WhisperCost prices durationMs of transcribed audio.
func WhisperCost(durationMs int64) decimal.Decimal {
	minutes := decimal.NewFromInt(durationMs).Div(decimal.NewFromInt(60_000))
	return FixedServiceCost(ServiceWhisper, minutes)
}

// TTSCost prices synthesising chars characters.
func TTSCost(chars int, hd bool) decimal.Decimal {
	service := ServiceTTS
	if hd {
		service = ServiceTTSHD
	}
	thousands := decimal.NewFromInt(int64(chars)).Div(decimal.NewFromInt(1000))
	return FixedServiceCost(service, thousands)
}

// RoundCost rounds d to CostPlaces and clamps negatives to zero.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(CostPlaces)
}
