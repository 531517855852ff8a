// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"github.com/jeranaias/doubtrun/internal/util"
)

const (
	// DefaultSpeechDurationMs is assumed when the upload size is unknown.
	DefaultSpeechDurationMs = 30_000

	// MaxSpeechChars caps the text sent for synthesis.
	MaxSpeechChars = 4096

	// audioBytesPerMs is the upload-size to duration estimate.
	audioBytesPerMs = 16

	providerOpenAI = "openai"
)

// EstimateSpeechDurationMs estimates audio length from upload size.
func EstimateSpeechDurationMs(sizeBytes int64) int64 {
	if sizeBytes <= 0 {
		return DefaultSpeechDurationMs
	}
	return (sizeBytes + audioBytesPerMs/2) / audioBytesPerMs
}

// SpeechToTextUsage builds the usage record for transcribing an upload of
// sizeBytes.
func SpeechToTextUsage(actorID string, sizeBytes int64) UsageRecord {
	durationMs := EstimateSpeechDurationMs(sizeBytes)
	return UsageRecord{
		ActorID:    actorID,
		Service:    ServiceSpeechToText,
		ModelID:    ServiceWhisper,
		Provider:   providerOpenAI,
		CostUSD:    WhisperCost(durationMs),
		DurationMs: durationMs,
	}
}

// PrepareSpeechText cleans markup from text and caps it at MaxSpeechChars.
func PrepareSpeechText(text string) string {
	return util.TruncateRunesNoEllipsis(util.CleanSpeechText(text), MaxSpeechChars)
}

// TextToSpeechUsage builds the usage record for synthesising text. The
// returned string is the prepared text that is actually billed.
func TextToSpeechUsage(actorID, text string, hd bool) (UsageRecord, string) {
	clean := PrepareSpeechText(text)
	model := ServiceTTS
	if hd {
		model = ServiceTTSHD
	}
	return UsageRecord{
		ActorID:  actorID,
		Service:  ServiceTextToSpeech,
		ModelID:  model,
		Provider: providerOpenAI,
		CostUSD:  TTSCost(util.RuneLen(clean), hd),
	}, clean
}
