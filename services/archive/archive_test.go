// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNoopArchiver(t *testing.T) {
	var a Archiver = NoopArchiver{}
	if a.Enabled() {
		t.Error("NoopArchiver.Enabled() = true, want false")
	}
	if err := a.Store(context.Background(), Artifact{SessionID: "s1", Kind: KindPlan}); err != nil {
		t.Errorf("NoopArchiver.Store() error = %v, want nil", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("NoopArchiver.Close() error = %v, want nil", err)
	}
}

func TestNewFromConfig_NoBucketIsNoop(t *testing.T) {
	a, err := NewFromConfig(context.Background(), Config{})
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	if a.Enabled() {
		t.Error("archiver without a bucket reports Enabled")
	}
	if _, ok := a.(NoopArchiver); !ok {
		t.Errorf("NewFromConfig() returned %T, want NoopArchiver", a)
	}
}

func TestNewGCSArchiver_RequiresBucket(t *testing.T) {
	_, err := NewGCSArchiver(context.Background(), Config{})
	if err == nil {
		t.Fatal("NewGCSArchiver() with no bucket should return an error")
	}
	if !strings.Contains(err.Error(), "bucket name is required") {
		t.Errorf("error = %v, want bucket requirement", err)
	}
}

func TestNewGCSArchiver_MissingCredentialsFile(t *testing.T) {
	_, err := NewGCSArchiver(context.Background(), Config{
		Bucket:          "test-bucket",
		CredentialsFile: "/nonexistent/path/to/key.json",
	})
	if err == nil {
		t.Fatal("NewGCSArchiver() with a missing key file should return an error")
	}
	if !strings.Contains(err.Error(), "service account key not found") {
		t.Errorf("error = %v, want missing key message", err)
	}
	if !strings.Contains(err.Error(), "/nonexistent/path/to/key.json") {
		t.Errorf("error = %v, want the offending path", err)
	}
}

func TestGCSArchiver_ObjectName(t *testing.T) {
	a := &GCSArchiver{prefix: "investigations"}
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

	got := a.objectName(Artifact{SessionID: "sess-42", Kind: KindAnalysis, Timestamp: ts})
	want := "investigations/sess-42/20250314T092653.589_analysis.json"
	if got != want {
		t.Errorf("objectName() = %q, want %q", got, want)
	}
}

func TestGCSArchiver_ObjectName_NoPrefix(t *testing.T) {
	a := &GCSArchiver{}
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	got := a.objectName(Artifact{SessionID: "sess-42", Kind: KindDispatch, Timestamp: ts})
	want := "sess-42/20250314T092653.000_dispatch.json"
	if got != want {
		t.Errorf("objectName() = %q, want %q", got, want)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"SENTINEL_ARCHIVE_BUCKET", "SENTINEL_ARCHIVE_PREFIX",
		"SENTINEL_ARCHIVE_CREDENTIALS_FILE", "SENTINEL_ARCHIVE_CONCURRENCY",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.Bucket != "" {
		t.Errorf("Bucket = %q, want empty", cfg.Bucket)
	}
	if cfg.Prefix != "investigations" {
		t.Errorf("Prefix = %q, want investigations", cfg.Prefix)
	}
	if cfg.Concurrency != defaultUploadConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, defaultUploadConcurrency)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SENTINEL_ARCHIVE_BUCKET", "sentinel-artifacts")
	t.Setenv("SENTINEL_ARCHIVE_PREFIX", "prod/investigations")
	t.Setenv("SENTINEL_ARCHIVE_CREDENTIALS_FILE", "/run/secrets/gcs_key.json")
	t.Setenv("SENTINEL_ARCHIVE_CONCURRENCY", "8")

	cfg := LoadConfig()
	if cfg.Bucket != "sentinel-artifacts" {
		t.Errorf("Bucket = %q, want sentinel-artifacts", cfg.Bucket)
	}
	if cfg.Prefix != "prod/investigations" {
		t.Errorf("Prefix = %q, want prod/investigations", cfg.Prefix)
	}
	if cfg.CredentialsFile != "/run/secrets/gcs_key.json" {
		t.Errorf("CredentialsFile = %q, want env value", cfg.CredentialsFile)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
}

func TestLoadConfig_BadConcurrencyFallsBack(t *testing.T) {
	t.Setenv("SENTINEL_ARCHIVE_CONCURRENCY", "not-a-number")
	if got := LoadConfig().Concurrency; got != defaultUploadConcurrency {
		t.Errorf("Concurrency = %d, want fallback %d", got, defaultUploadConcurrency)
	}

	t.Setenv("SENTINEL_ARCHIVE_CONCURRENCY", "-2")
	if got := LoadConfig().Concurrency; got != defaultUploadConcurrency {
		t.Errorf("Concurrency = %d, want fallback %d", got, defaultUploadConcurrency)
	}
}

// Integration coverage requires real credentials and is gated on the
// environment, mirroring how the rest of the fleet tests GCS.
func TestGCSArchiver_StoreIntegration(t *testing.T) {
	bucket := os.Getenv("GCS_TEST_BUCKET_NAME")
	keyPath := os.Getenv("GCS_TEST_SA_KEY_PATH")
	if bucket == "" || keyPath == "" {
		t.Skip("Skipping integration test: GCS_TEST_BUCKET_NAME and GCS_TEST_SA_KEY_PATH not set")
	}

	ctx := context.Background()
	a, err := NewGCSArchiver(ctx, Config{Bucket: bucket, CredentialsFile: keyPath, Prefix: "test"})
	if err != nil {
		t.Fatalf("NewGCSArchiver() error = %v", err)
	}
	defer a.Close()

	err = a.Store(ctx, Artifact{
		SessionID: "integration",
		Kind:      KindPlan,
		Payload:   []byte(`{"queries":[]}`),
	})
	if err != nil {
		t.Errorf("Store() error = %v", err)
	}
}
