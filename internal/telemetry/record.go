// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Services a UsageRecord can be billed under.
const (
	ServiceChat         = "chat"
	ServiceSpeechToText = "whisper-stt"
	ServiceTextToSpeech = "tts"
)

// ErrPersistence wraps every failure to write a usage record.
var ErrPersistence = errors.New("usage persistence failed")

// UsageRecord is one billable AI call. TotalTokens always equals
// InputTokens + OutputTokens once the record passes through a Tracker.
type UsageRecord struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ActorID      string          `json:"actor_id,omitempty" gorm:"index;type:varchar(128)"`
	RequestID    string          `json:"request_id,omitempty" gorm:"type:varchar(64)"`
	Service      string          `json:"service" gorm:"index;type:varchar(32);not null"`
	ModelID      string          `json:"model" gorm:"column:model;type:varchar(64);not null"`
	Provider     string          `json:"provider" gorm:"type:varchar(32);not null"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	TotalTokens  int             `json:"total_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd" gorm:"type:numeric(12,6);not null"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at" gorm:"index"`
}

// TableName keeps the table name stable across stores.
func (UsageRecord) TableName() string {
	return "ai_usage_logs"
}

// Store persists usage records. Implementations must be safe for
// concurrent use.
type Store interface {
	Append(ctx context.Context, rec UsageRecord) error
	Close() error
}

// Lister is implemented by stores that can return recent records.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]UsageRecord, error)
}
