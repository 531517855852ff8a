// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jeranaias/doubtrun/internal/metrics"
)

// topRecordsKept is how many of the most expensive records a Snapshot keeps.
const topRecordsKept = 10

// =============================================================================
// TRACKER
// =============================================================================

// Tracker normalises usage records, appends them to a Store and keeps
// process-local running totals for /stats.
type Tracker struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	startedAt time.Time
	totals    Totals
	byModel   map[string]*Totals
	byService map[string]*Totals
	top       []UsageRecord
}

// Totals accumulates request, token and cost counts.
type Totals struct {
	Requests     int             `json:"requests"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	TotalTokens  int             `json:"total_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
}

func (t *Totals) add(rec UsageRecord) {
	t.Requests++
	t.InputTokens += rec.InputTokens
	t.OutputTokens += rec.OutputTokens
	t.TotalTokens += rec.TotalTokens
	t.CostUSD = t.CostUSD.Add(rec.CostUSD)
}

// Snapshot is a point-in-time copy of a Tracker's running totals.
type Snapshot struct {
	StartedAt  time.Time         `json:"started_at"`
	Totals     Totals            `json:"totals"`
	ByModel    map[string]Totals `json:"by_model"`
	ByService  map[string]Totals `json:"by_service"`
	TopRecords []UsageRecord     `json:"top_records"`
}

// NewTracker creates a tracker over store. A nil store records to memory.
func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:     store,
		logger:    logger,
		now:       time.Now,
		byModel:   make(map[string]*Totals),
		byService: make(map[string]*Totals),
	}
	t.startedAt = t.now().UTC()
	return t
}

// =============================================================================
// RECORDING
// =============================================================================

// RecordUsage normalises rec and appends it to the store:
//   - ID is generated when empty
//   - negative token counts become zero and TotalTokens is recomputed
//   - CostUSD is rounded to six places and clamped at zero
//   - CreatedAt defaults to now (UTC)
//
// Running totals and cost metrics only include records the store accepted.
// Store failures are counted and returned wrapped in ErrPersistence.
func (t *Tracker) RecordUsage(ctx context.Context, rec UsageRecord) error {
	rec = t.normalize(rec)

	if err := t.store.Append(ctx, rec); err != nil {
		metrics.UsagePersistFailuresTotal.WithLabelValues(rec.Service).Inc()
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	t.mu.Lock()
	t.totals.add(rec)
	bucket(t.byModel, rec.ModelID).add(rec)
	bucket(t.byService, rec.Service).add(rec)
	t.top = append(t.top, rec)
	sort.SliceStable(t.top, func(i, j int) bool {
		return t.top[i].CostUSD.GreaterThan(t.top[j].CostUSD)
	})
	if len(t.top) > topRecordsKept {
		t.top = t.top[:topRecordsKept]
	}
	t.mu.Unlock()

	metrics.TokensTotal.WithLabelValues(rec.ModelID, "input").Add(float64(rec.InputTokens))
	metrics.TokensTotal.WithLabelValues(rec.ModelID, "output").Add(float64(rec.OutputTokens))
	metrics.CostTotal.WithLabelValues(rec.Service, rec.ModelID, rec.Provider).Add(rec.CostUSD.InexactFloat64())

	t.logger.Debug("USAGE_RECORDED",
		zap.String("id", rec.ID),
		zap.String("service", rec.Service),
		zap.String("model", rec.ModelID),
		zap.Int("total_tokens", rec.TotalTokens),
		zap.String("cost_usd", rec.CostUSD.StringFixed(CostPlaces)),
	)
	return nil
}

func (t *Tracker) normalize(rec UsageRecord) UsageRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.InputTokens = max(rec.InputTokens, 0)
	rec.OutputTokens = max(rec.OutputTokens, 0)
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	rec.CostUSD = RoundCost(rec.CostUSD)
	if rec.DurationMs < 0 {
		rec.DurationMs = 0
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now().UTC()
	}
	return rec
}

func bucket(m map[string]*Totals, key string) *Totals {
	b, ok := m[key]
	if !ok {
		b = &Totals{}
		m[key] = b
	}
	return b
}

// =============================================================================
// RETRIEVAL
// =============================================================================

// Snapshot returns a copy of the running totals.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		StartedAt:  t.startedAt,
		Totals:     t.totals,
		ByModel:    make(map[string]Totals, len(t.byModel)),
		ByService:  make(map[string]Totals, len(t.byService)),
		TopRecords: make([]UsageRecord, len(t.top)),
	}
	for k, v := range t.byModel {
		snap.ByModel[k] = *v
	}
	for k, v := range t.byService {
		snap.ByService[k] = *v
	}
	copy(snap.TopRecords, t.top)
	return snap
}

// Recent returns up to limit stored records, newest first, when the store
// supports listing.
func (t *Tracker) Recent(ctx context.Context, limit int) ([]UsageRecord, error) {
	l, ok := t.store.(Lister)
	if !ok {
		return nil, fmt.Errorf("store %T does not support listing", t.store)
	}
	return l.Recent(ctx, limit)
}

// Close closes the underlying store.
func (t *Tracker) Close() error {
	return t.store.Close()
}

// String summarises the totals for logs.
func (s Snapshot) String() string {
	return fmt.Sprintf("requests=%d tokens=%d cost=$%s",
		s.Totals.Requests, s.Totals.TotalTokens, s.Totals.CostUSD.StringFixed(CostPlaces))
}
