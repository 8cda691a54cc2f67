// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive persists investigation artifacts (plans, execution
// digests, analyses, proposals, dispatch records) to object storage so a
// session can be reconstructed after the fact. Archival is best-effort:
// callers log failures and keep going.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// Artifact kinds, one per pipeline stage plus the dispatch record.
const (
	KindPlan      = "plan"
	KindExecution = "execution"
	KindAnalysis  = "analysis"
	KindProposal  = "proposal"
	KindDispatch  = "dispatch"
)

const defaultUploadConcurrency = 4

// Artifact is one investigation record.
type Artifact struct {
	SessionID string
	Kind      string
	Timestamp time.Time
	Payload   []byte
}

// Archiver stores investigation artifacts.
type Archiver interface {
	Store(ctx context.Context, artifacts ...Artifact) error
	Enabled() bool
	Close() error
}

// Config holds archive settings, read from the environment.
type Config struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	Concurrency     int
}

// LoadConfig reads SENTINEL_ARCHIVE_* variables. An empty bucket disables
// archival entirely.
func LoadConfig() Config {
	concurrency := defaultUploadConcurrency
	if raw := os.Getenv("SENTINEL_ARCHIVE_CONCURRENCY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			concurrency = n
		}
	}
	prefix := os.Getenv("SENTINEL_ARCHIVE_PREFIX")
	if prefix == "" {
		prefix = "investigations"
	}
	return Config{
		Bucket:          os.Getenv("SENTINEL_ARCHIVE_BUCKET"),
		Prefix:          prefix,
		CredentialsFile: os.Getenv("SENTINEL_ARCHIVE_CREDENTIALS_FILE"),
		Concurrency:     concurrency,
	}
}

// NewFromConfig returns a GCS archiver when a bucket is configured and a
// no-op archiver otherwise.
func NewFromConfig(ctx context.Context, cfg Config) (Archiver, error) {
	if cfg.Bucket == "" {
		slog.Info("Investigation archive disabled (no bucket configured)")
		return NoopArchiver{}, nil
	}
	return NewGCSArchiver(ctx, cfg)
}

// ===== GCS implementation =====

// GCSArchiver uploads artifacts as JSON objects under
// <prefix>/<session>/<timestamp>_<kind>.json.
//
// Thread Safety: GCSArchiver is safe for concurrent use.
type GCSArchiver struct {
	client      *storage.Client
	bucket      string
	prefix      string
	concurrency int
}

// NewGCSArchiver creates a GCSArchiver.
//
// Description:
//
//	With a credentials file configured the client authenticates from
//	that key; otherwise it falls back to application default
//	credentials.
//
// Inputs:
//   - ctx: Used for client construction.
//   - cfg: Bucket, object prefix, optional credentials file.
//
// Outputs:
//   - *GCSArchiver: The configured archiver.
//   - error: Non-nil when the bucket is missing or the client cannot be
//     created.
func NewGCSArchiver(ctx context.Context, cfg Config) (*GCSArchiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("archive: service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: creating GCS storage client: %w", err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}

	return &GCSArchiver{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		concurrency: concurrency,
	}, nil
}

// Enabled implements Archiver.Enabled.
func (a *GCSArchiver) Enabled() bool { return true }

// Close releases the underlying storage client.
func (a *GCSArchiver) Close() error { return a.client.Close() }

// Store implements Archiver.Store with bounded-concurrency uploads. The
// first upload error cancels the remaining uploads and is returned.
func (a *GCSArchiver) Store(ctx context.Context, artifacts ...Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, a.concurrency)

	for _, art := range artifacts {
		art := art
		if art.Timestamp.IsZero() {
			art.Timestamp = time.Now()
		}
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			return a.upload(gctx, art)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("archive: storing artifacts: %w", err)
	}
	return nil
}

func (a *GCSArchiver) upload(ctx context.Context, art Artifact) error {
	name := a.objectName(art)
	start := time.Now()

	obj := a.client.Bucket(a.bucket).Object(name)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(art.Payload); err != nil {
		w.Close()
		recordUpload(art.Kind, time.Since(start), err)
		return fmt.Errorf("archive: writing object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		recordUpload(art.Kind, time.Since(start), err)
		return fmt.Errorf("archive: closing writer for %s: %w", name, err)
	}

	recordUpload(art.Kind, time.Since(start), nil)
	slog.Debug("Artifact archived",
		slog.String("object", name),
		slog.Int("bytes", len(art.Payload)),
	)
	return nil
}

// objectName builds <prefix>/<session>/<timestamp>_<kind>.json. The
// millisecond timestamp keeps repeated stages within a session distinct.
func (a *GCSArchiver) objectName(art Artifact) string {
	ts := art.Timestamp.UTC().Format("20060102T150405.000")
	return path.Join(a.prefix, art.SessionID, fmt.Sprintf("%s_%s.json", ts, art.Kind))
}

// ===== No-op implementation =====

// NoopArchiver discards artifacts. Used when no bucket is configured.
type NoopArchiver struct{}

// Store implements Archiver.Store.
func (NoopArchiver) Store(context.Context, ...Artifact) error { return nil }

// Enabled implements Archiver.Enabled.
func (NoopArchiver) Enabled() bool { return false }

// Close implements Archiver.Close.
func (NoopArchiver) Close() error { return nil }

// ===== Metrics =====

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "archive",
			Name:      "uploads_total",
			Help:      "Artifact uploads by kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	uploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "archive",
			Name:      "upload_duration_seconds",
			Help:      "Artifact upload duration.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func recordUpload(kind string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	uploadsTotal.WithLabelValues(kind, status).Inc()
	uploadDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
