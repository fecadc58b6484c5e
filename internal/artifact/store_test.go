package artifact_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/routegate/gateway/internal/artifact"
	"github.com/routegate/gateway/internal/config"
	"github.com/routegate/gateway/pkg/models"
)

func writeArtifactFile(t *testing.T, path string, a *models.Artifact) {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write artifact file: %v", err)
	}
}

func TestStore_LoadFromLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.json")
	writeArtifactFile(t, path, validArtifact())

	s := artifact.NewStore(config.ArtifactConfig{URL: path, CacheDir: filepath.Join(dir, "cache")})
	got, err := s.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Version != "2026-01-01T00:00:00Z" {
		t.Errorf("Version = %q", got.Version)
	}
	if s.Degraded() {
		t.Error("expected non-degraded mode after a successful remote load")
	}
}

func TestStore_FreshInMemoryCopyServedWithoutRefetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.json")
	writeArtifactFile(t, path, validArtifact())

	s := artifact.NewStore(config.ArtifactConfig{URL: path, CacheDir: filepath.Join(dir, "cache"), FreshWindow: time.Hour})
	first, err := s.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	// Remove the backing file; a fresh in-memory copy should still be served.
	os.Remove(path)
	second, err := s.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if second != first {
		t.Error("expected the same in-memory artifact pointer within the fresh window")
	}
}

func TestStore_RemoteFailureFallsBackToDiskCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.json")
	cacheDir := filepath.Join(dir, "cache")
	writeArtifactFile(t, path, validArtifact())

	s := artifact.NewStore(config.ArtifactConfig{URL: path, CacheDir: cacheDir, FreshWindow: time.Millisecond})
	if _, err := s.Load(context.Background(), false); err != nil {
		t.Fatalf("initial Load() error = %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	os.Remove(path) // remote now unreachable, but disk cache was written on the first load

	got, err := s.Load(context.Background(), true)
	if err != nil {
		t.Fatalf("Load() error = %v, want disk-cache fallback to succeed", err)
	}
	if got.Version != "2026-01-01T00:00:00Z" {
		t.Errorf("disk-cache fallback Version = %q", got.Version)
	}
	if s.Degraded() {
		t.Error("disk-cache fallback should not be flagged as degraded (that's only the emergency path)")
	}
}

func TestStore_NoRemoteNoDiskLoadsEmergencyArtifact(t *testing.T) {
	dir := t.TempDir()
	s := artifact.NewStore(config.ArtifactConfig{URL: filepath.Join(dir, "does-not-exist.json"), CacheDir: filepath.Join(dir, "cache")})

	got, err := s.Load(context.Background(), false)
	if err == nil {
		t.Fatal("expected an artifact_unavailable error when no source is reachable")
	}
	if got.Version != "emergency" {
		t.Errorf("Version = %q, want emergency", got.Version)
	}
	if !s.Degraded() {
		t.Error("expected degraded mode when serving the emergency artifact")
	}
}

func TestStore_InvalidArtifactJSONFailsValidationAndDegrades(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	bad := validArtifact()
	bad.Alpha = 5 // out of [0,1], fails Validate
	writeArtifactFile(t, path, bad)

	s := artifact.NewStore(config.ArtifactConfig{URL: path, CacheDir: filepath.Join(dir, "cache")})
	got, err := s.Load(context.Background(), false)
	if err == nil {
		t.Fatal("expected validation failure to surface as an error")
	}
	if got.Version != "emergency" {
		t.Errorf("Version = %q, want emergency after validation failure with no disk cache", got.Version)
	}
}
