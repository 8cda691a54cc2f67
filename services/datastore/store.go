// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datastore provides the read-only SQL capability the investigation
// pipeline runs its planned queries through. The guard in this package is
// the single implementation of read-only validation: the planner uses it to
// drop unsafe specs at plan time and the store re-applies it before every
// execution, so a query that bypasses planning still cannot write.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const dsTracerName = "sentinel.datastore"

// Driver name constants accepted by Open. The corresponding driver package
// must be blank-imported by the binary (cmd/sentinel does both).
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config selects and tunes the read-only store.
type Config struct {
	// Driver is "sqlite" or "mysql".
	Driver string

	// DSN is the driver-specific data source name.
	DSN string

	// MaxRows caps the rows returned by a single query. Results at the cap
	// are truncated, not failed.
	MaxRows int

	// QueryTimeout bounds a single query execution.
	QueryTimeout time.Duration

	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int
}

// Row cap matching the upstream commerce database's default query limit.
const defaultMaxRows = 1000

const (
	defaultQueryTimeout = 30 * time.Second
	defaultMaxOpenConns = 4
)

// LoadConfig builds a Config from SENTINEL_DB_* environment variables.
//
// Description:
//
//	Reads SENTINEL_DB_DRIVER, SENTINEL_DB_DSN, SENTINEL_DB_MAX_ROWS, and
//	SENTINEL_DB_QUERY_TIMEOUT_SECONDS. Unset values fall back to a local
//	sqlite file so a dev checkout works with zero configuration.
func LoadConfig() Config {
	cfg := Config{
		Driver:       os.Getenv("SENTINEL_DB_DRIVER"),
		DSN:          os.Getenv("SENTINEL_DB_DSN"),
		MaxRows:      envInt("SENTINEL_DB_MAX_ROWS", defaultMaxRows),
		QueryTimeout: envSeconds("SENTINEL_DB_QUERY_TIMEOUT_SECONDS", defaultQueryTimeout),
		MaxOpenConns: envInt("SENTINEL_DB_MAX_OPEN_CONNS", defaultMaxOpenConns),
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.DSN == "" && cfg.Driver == DriverSQLite {
		cfg.DSN = "sentinel.db"
	}
	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// ReadOnlyStore is the query capability consumed by the executor.
//
// Description:
//
//	Query runs one validated read-only statement and returns its rows as
//	column-keyed maps. Implementations must re-validate: callers are not
//	trusted to have run the guard.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ReadOnlyStore interface {
	// Query executes a single read-only statement.
	Query(ctx context.Context, sqlText string) ([]map[string]any, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying pool.
	Close() error
}

// SQLStore implements ReadOnlyStore on database/sql.
//
// Thread Safety: SQLStore is safe for concurrent use; database/sql pools
// connections internally.
type SQLStore struct {
	db       *sql.DB
	driver   string
	maxRows  int
	qTimeout time.Duration
}

// Open connects the configured driver and verifies connectivity.
//
// Inputs:
//   - cfg: Store configuration, normally from LoadConfig.
//
// Outputs:
//   - *SQLStore: The ready store.
//   - error: Non-nil when the driver is unknown, unregistered, or unreachable.
func Open(cfg Config) (*SQLStore, error) {
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverMySQL {
		return nil, fmt.Errorf("datastore: unknown driver %q (want sqlite or mysql)", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("datastore: open %s: %w", cfg.Driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: ping %s: %w", cfg.Driver, err)
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	qTimeout := cfg.QueryTimeout
	if qTimeout <= 0 {
		qTimeout = defaultQueryTimeout
	}

	slog.Info("Read-only store connected",
		slog.String("driver", cfg.Driver),
		slog.Int("max_rows", maxRows),
	)

	return &SQLStore{
		db:       db,
		driver:   cfg.Driver,
		maxRows:  maxRows,
		qTimeout: qTimeout,
	}, nil
}

// Query implements ReadOnlyStore.Query.
//
// Description:
//
//	Re-validates the statement through the guard, executes it under the
//	configured timeout, and scans every row into a column-keyed map.
//	Results are truncated at the row cap rather than failed.
//
// Thread Safety: This method is safe for concurrent use.
func (s *SQLStore) Query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	ctx, span := otel.Tracer(dsTracerName).Start(ctx, "SQLStore.Query")
	defer span.End()
	span.SetAttributes(attribute.String("db.driver", s.driver))

	normalized, err := ValidateReadOnly(sqlText)
	if err != nil {
		recordQueryRejected(s.driver)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.qTimeout)
	defer cancel()

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, normalized)
	if err != nil {
		recordQuery(s.driver, time.Since(start), 0, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("datastore: query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		recordQuery(s.driver, time.Since(start), 0, err)
		return nil, fmt.Errorf("datastore: reading columns: %w", err)
	}

	out := make([]map[string]any, 0, 16)
	truncated := false
	for rows.Next() {
		if len(out) >= s.maxRows {
			truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			recordQuery(s.driver, time.Since(start), len(out), err)
			return nil, fmt.Errorf("datastore: scanning row %d: %w", len(out), err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		recordQuery(s.driver, time.Since(start), len(out), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("datastore: iterating rows: %w", err)
	}

	if truncated {
		slog.Warn("Query result truncated at row cap",
			slog.Int("max_rows", s.maxRows),
			slog.String("driver", s.driver),
		)
	}

	duration := time.Since(start)
	recordQuery(s.driver, duration, len(out), nil)
	span.SetAttributes(
		attribute.Int("db.rows_returned", len(out)),
		attribute.Bool("db.truncated", truncated),
	)
	return out, nil
}

// Ping implements ReadOnlyStore.Ping.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements ReadOnlyStore.Close.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// normalizeValue converts driver-specific scan values into JSON-friendly
// types. MySQL returns text columns as []byte; the analyzer serializes
// rows to JSON, where raw bytes would base64-encode.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
