// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecordUsage_Normalizes(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, nil)

	err := tracker.RecordUsage(context.Background(), UsageRecord{
		Service:      ServiceChat,
		ModelID:      "gpt-4o-mini",
		Provider:     "openai",
		InputTokens:  1000,
		OutputTokens: 500,
		TotalTokens:  7,
		CostUSD:      dec("0.000450449"),
	})
	require.NoError(t, err)

	recs := store.Records()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1500, rec.TotalTokens)
	assert.Equal(t, rec.InputTokens+rec.OutputTokens, rec.TotalTokens)
	assertCost(t, "0.00045", rec.CostUSD)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
}

func TestTracker_RecordUsage_ClampsNegatives(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, nil)

	require.NoError(t, tracker.RecordUsage(context.Background(), UsageRecord{
		Service:      ServiceChat,
		ModelID:      "gpt-4.1",
		InputTokens:  -4,
		OutputTokens: 10,
		CostUSD:      dec("-1"),
		DurationMs:   -3,
	}))

	rec := store.Records()[0]
	assert.Equal(t, 0, rec.InputTokens)
	assert.Equal(t, 10, rec.TotalTokens)
	assert.True(t, rec.CostUSD.IsZero())
	assert.Zero(t, rec.DurationMs)
}

func TestTracker_RecordUsage_KeepsGivenID(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, nil)

	require.NoError(t, tracker.RecordUsage(context.Background(), UsageRecord{ID: "fixed", Service: ServiceChat}))
	assert.Equal(t, "fixed", store.Records()[0].ID)
}

func TestTracker_RecordUsage_StoreFailure(t *testing.T) {
	store := NewMemoryStore()
	store.FailWith(errors.New("disk full"))
	tracker := NewTracker(store, nil)

	err := tracker.RecordUsage(context.Background(), UsageRecord{
		Service: ServiceChat, ModelID: "gpt-4o-mini", InputTokens: 10,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")

	assert.Empty(t, store.Records())
	assert.Zero(t, tracker.Snapshot().Totals.Requests, "rejected records stay out of the totals")
	assert.Empty(t, tracker.Snapshot().ByModel)

	store.FailWith(nil)
	require.NoError(t, tracker.RecordUsage(context.Background(), UsageRecord{
		Service: ServiceChat, ModelID: "gpt-4o-mini", InputTokens: 10,
	}))
	snap := tracker.Snapshot()
	assert.Equal(t, 1, snap.Totals.Requests)
	assert.Equal(t, 1, snap.ByModel["gpt-4o-mini"].Requests)
}

func TestTracker_Snapshot(t *testing.T) {
	tracker := NewTracker(nil, nil)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		model := "gpt-4o-mini"
		if i%2 == 0 {
			model = "gpt-4.1"
		}
		require.NoError(t, tracker.RecordUsage(ctx, UsageRecord{
			Service:      ServiceChat,
			ModelID:      model,
			InputTokens:  i * 100,
			OutputTokens: i * 10,
			CostUSD:      TokenCost(model, i*100, i*10),
		}))
	}
	require.NoError(t, tracker.RecordUsage(ctx, UsageRecord{
		Service: ServiceSpeechToText, ModelID: ServiceWhisper, CostUSD: WhisperCost(60_000),
	}))

	snap := tracker.Snapshot()
	assert.Equal(t, 13, snap.Totals.Requests)
	assert.Equal(t, 6, snap.ByModel["gpt-4.1"].Requests)
	assert.Equal(t, 6, snap.ByModel["gpt-4o-mini"].Requests)
	assert.Equal(t, 12, snap.ByService[ServiceChat].Requests)
	assert.Equal(t, 1, snap.ByService[ServiceSpeechToText].Requests)
	assert.Equal(t, snap.Totals.InputTokens+snap.Totals.OutputTokens, snap.Totals.TotalTokens)

	require.Len(t, snap.TopRecords, topRecordsKept)
	for i := 1; i < len(snap.TopRecords); i++ {
		assert.False(t, snap.TopRecords[i].CostUSD.GreaterThan(snap.TopRecords[i-1].CostUSD),
			"top records not sorted at %d", i)
	}

	// Mutating the snapshot must not affect the tracker.
	snap.ByModel["gpt-4.1"] = Totals{}
	assert.Equal(t, 6, tracker.Snapshot().ByModel["gpt-4.1"].Requests)
	assert.Contains(t, snap.String(), "requests=13")
}

func TestTracker_Recent(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.RecordUsage(ctx, UsageRecord{ID: fmt.Sprintf("r%d", i), Service: ServiceChat}))
	}

	recent, err := tracker.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r2", recent[0].ID)
	assert.Equal(t, "r1", recent[1].ID)
}

type appendOnlyStore struct{}

func (appendOnlyStore) Append(context.Context, UsageRecord) error { return nil }
func (appendOnlyStore) Close() error                              { return nil }

func TestTracker_Recent_Unsupported(t *testing.T) {
	tracker := NewTracker(appendOnlyStore{}, nil)
	_, err := tracker.Recent(context.Background(), 5)
	assert.Error(t, err)
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tracker.RecordUsage(context.Background(), UsageRecord{
				Service: ServiceChat, ModelID: "gpt-4o-mini", InputTokens: 10, OutputTokens: 5,
			})
			_ = tracker.Snapshot()
		}()
	}
	wg.Wait()

	assert.Len(t, store.Records(), 50)
	assert.Equal(t, 750, tracker.Snapshot().Totals.TotalTokens)
}
