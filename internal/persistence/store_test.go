package persistence

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ent0n29/mcctrack/internal/tracking"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := "session-" + time.Now().Format("150405.000000000")

	if _, err := s.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() missing key error = %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, key, []byte("v1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, key, []byte("v2")); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	got, err := s.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("Load() = %q, want %q", got, "v2")
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() missing key error = %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestInMemoryStoreCopiesBytes(t *testing.T) {
	s := NewInMemoryStore()
	buf := []byte("abc")
	_ = s.Save(context.Background(), "k", buf)
	buf[0] = 'x'
	got, _ := s.Load(context.Background(), "k")
	if string(got) != "abc" {
		t.Fatalf("stored snapshot aliased caller buffer: %q", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreReopenKeepsSchemaAndData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Save(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	_ = s.Close()

	s, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	version, dirty, err := sqliteSchemaVersion(s.db)
	if err != nil {
		t.Fatalf("sqliteSchemaVersion() error = %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("schema version = %d dirty=%t, want 1 clean", version, dirty)
	}
	got, err := s.Load(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Load() after reopen = %q, %v", got, err)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("MCCTRACK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MCCTRACK_TEST_DATABASE_URL not set; skipping integration test")
	}
	s, err := NewPostgresStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("MCCTRACK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MCCTRACK_TEST_REDIS_URL not set; skipping integration test")
	}
	s, err := NewRedisStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSessionSnapshotSurvivesStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "roundtrip.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	start := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	want := &tracking.Session{
		ID:            "sess-1",
		UserID:        "user-1",
		StartedAt:     start,
		LastUpdatedAt: start.Add(3 * time.Minute),
		ExpiresAt:     start.Add(time.Hour),
		IsActive:      true,
		Config:        tracking.DefaultConfig(),
	}
	for i := 0; i < 3; i++ {
		at := start.Add(time.Duration(i) * time.Minute)
		want.Append(tracking.HistoryEntry{
			Position:   tracking.Position{Latitude: 45 + float64(i)/1000, Longitude: 9, CapturedAt: at, Source: tracking.SourceGPS},
			Prediction: &tracking.PredictionRecord{Category: "5812", Confidence: 0.7, Method: "poi", PredictedAt: at},
			RecordedAt: at,
		}, want.Config.MaxHistorySize)
	}

	data, err := tracking.MarshalSnapshot(want)
	if err != nil {
		t.Fatalf("MarshalSnapshot() error = %v", err)
	}
	if err := s.Save(ctx, "current", data); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := s.Load(ctx, "current")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, err := tracking.UnmarshalSnapshot(loaded)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("session mismatch after store round trip (-want +got):\n%s", diff)
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, "")
	if err != nil || Mode(s) != "memory" {
		t.Fatalf("NewStore(\"\") = %T, %v", s, err)
	}
	s, err = NewStore(ctx, "sqlite://"+filepath.Join(t.TempDir(), "f.db"))
	if err != nil || Mode(s) != "sqlite" {
		t.Fatalf("NewStore(sqlite) = %T, %v", s, err)
	}
	_ = s.Close()
	if _, err := NewStore(ctx, "ftp://nope"); err == nil {
		t.Fatalf("NewStore(ftp) expected error")
	}
}
