// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ai_usage_logs (
	id            TEXT PRIMARY KEY,
	actor_id      TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	service       TEXT NOT NULL,
	model         TEXT NOT NULL,
	provider      TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens  INTEGER NOT NULL DEFAULT 0,
	cost_usd      TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_usage_logs_actor ON ai_usage_logs(actor_id);
CREATE INDEX IF NOT EXISTS idx_ai_usage_logs_created ON ai_usage_logs(created_at);
`

// SQLiteStore persists usage records to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// createdAtLayout is fixed width so text order matches time order.
// RFC3339Nano trims trailing zeros and does not.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Append inserts rec.
func (s *SQLiteStore) Append(ctx context.Context, rec UsageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_usage_logs
			(id, actor_id, request_id, service, model, provider,
			 input_tokens, output_tokens, total_tokens, cost_usd, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActorID, rec.RequestID, rec.Service, rec.ModelID, rec.Provider,
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		rec.CostUSD.StringFixed(CostPlaces), rec.DurationMs,
		rec.CreatedAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, request_id, service, model, provider,
		       input_tokens, output_tokens, total_tokens, cost_usd, duration_ms, created_at
		FROM ai_usage_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var created string
		if err := rows.Scan(
			&rec.ID, &rec.ActorID, &rec.RequestID, &rec.Service, &rec.ModelID, &rec.Provider,
			&rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens, &rec.CostUSD, &rec.DurationMs, &created,
		); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
