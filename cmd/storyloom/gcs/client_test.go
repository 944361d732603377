// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// NewClient Tests
// ============================================================================

func TestNewClient_NonExistentSAKeyPath(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, "test-bucket", "/nonexistent/path/to/key.json")
	if err == nil {
		t.Fatal("NewClient with non-existent SA key should return error")
	}
	if !strings.Contains(err.Error(), "service account key not found") {
		t.Errorf("Error should mention SA key not found, got: %v", err)
	}
	if !strings.Contains(err.Error(), "/nonexistent/path/to/key.json") {
		t.Errorf("Error should contain the path, got: %v", err)
	}
}

func TestNewClient_EmptyPath(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, "test-bucket", "")
	if err == nil {
		t.Fatal("NewClient with empty SA key path should return error")
	}
}

func TestNewClient_InvalidCredentialsFile(t *testing.T) {
	ctx := context.Background()

	// Create a temporary file with invalid JSON
	tmpDir := t.TempDir()
	invalidKeyPath := filepath.Join(tmpDir, "invalid_key.json")
	err := os.WriteFile(invalidKeyPath, []byte("not valid json"), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	_, err = NewClient(ctx, "test-bucket", invalidKeyPath)
	if err == nil {
		t.Fatal("NewClient with invalid credentials file should return error")
	}
	if !strings.Contains(err.Error(), "failed to create GCS storage client") {
		t.Errorf("Error should mention failed to create client, got: %v", err)
	}
}

// ============================================================================
// ObjectPath Tests
// ============================================================================

func TestObjectPath(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := ObjectPath("proj-abc123", ts)
	want := "exports/proj-abc123/20260314T092653Z.json"
	if got != want {
		t.Errorf("ObjectPath() = %q, want %q", got, want)
	}
}

func TestObjectPath_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2026, 3, 14, 11, 26, 53, 0, loc)
	got := ObjectPath("proj-abc123", ts)
	if !strings.Contains(got, "20260314T092653Z") {
		t.Errorf("ObjectPath() should normalize to UTC, got %q", got)
	}
}

func TestObjectPath_SortsChronologically(t *testing.T) {
	earlier := ObjectPath("p1", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	later := ObjectPath("p1", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	if !(earlier < later) {
		t.Errorf("Object names should sort chronologically: %q >= %q", earlier, later)
	}
}

// ============================================================================
// UploadFile Tests (error paths that don't require GCS connection)
// ============================================================================

func TestClient_UploadFile_NonExistentLocalFile(t *testing.T) {
	// Create a client struct directly without a real storage client.
	// This tests the local file validation before any GCS operations.
	client := &Client{
		storageClient: nil,
		BucketName:    "test-bucket",
	}

	ctx := context.Background()
	err := client.UploadFile(ctx, "/nonexistent/file/path.json", "exports/p1/x.json")
	if err == nil {
		t.Fatal("UploadFile with non-existent local file should return error")
	}
	if !strings.Contains(err.Error(), "failed to open the local file") {
		t.Errorf("Error should mention failed to open file, got: %v", err)
	}
}

func TestClient_UploadFile_EmptyPath(t *testing.T) {
	client := &Client{
		storageClient: nil,
		BucketName:    "test-bucket",
	}

	ctx := context.Background()
	err := client.UploadFile(ctx, "", "exports/p1/x.json")
	if err == nil {
		t.Fatal("UploadFile with empty local path should return error")
	}
}

// ============================================================================
// Integration Tests (require real GCS credentials)
// These tests are skipped by default but document how to test with real GCS
// ============================================================================

func TestNewClient_Integration(t *testing.T) {
	keyPath := os.Getenv("GCS_TEST_SA_KEY_PATH")
	bucketName := os.Getenv("GCS_TEST_BUCKET_NAME")

	if keyPath == "" || bucketName == "" {
		t.Skip("Skipping integration test: GCS_TEST_SA_KEY_PATH and GCS_TEST_BUCKET_NAME not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, bucketName, keyPath)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("NewClient returned nil client")
	}
	if client.BucketName != bucketName {
		t.Errorf("BucketName = %q, want %q", client.BucketName, bucketName)
	}
}

func TestClient_UploadSnapshot_Integration(t *testing.T) {
	keyPath := os.Getenv("GCS_TEST_SA_KEY_PATH")
	bucketName := os.Getenv("GCS_TEST_BUCKET_NAME")

	if keyPath == "" || bucketName == "" {
		t.Skip("Skipping integration test: GCS_TEST_SA_KEY_PATH and GCS_TEST_BUCKET_NAME not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, bucketName, keyPath)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	payload := []byte(`{"nodes":[],"edges":[]}`)
	objectPath := ObjectPath("integration-test", time.Now())
	if err := client.UploadSnapshot(ctx, objectPath, payload); err != nil {
		t.Errorf("UploadSnapshot failed: %v", err)
	}
}
