//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_PutGetScan(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	prefix := "itest:" + uuid.New().String()[:8] + ":"

	keys := []string{prefix + "c", prefix + "a", prefix + "b"}
	for _, k := range keys {
		if err := s.Put(ctx, k, []byte("v-"+k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	t.Cleanup(func() {
		for _, k := range keys {
			_ = s.Delete(ctx, k)
		}
	})

	v, ok, err := s.Get(ctx, prefix+"a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != "v-"+prefix+"a" {
		t.Errorf("unexpected value %q", v)
	}

	var scanned []string
	err = s.ScanPrefix(ctx, prefix, func(key string, _ []byte) error {
		scanned = append(scanned, key)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{prefix + "a", prefix + "b", prefix + "c"}
	if len(scanned) != len(want) {
		t.Fatalf("scanned %d keys, want %d", len(scanned), len(want))
	}
	for i := range want {
		if scanned[i] != want[i] {
			t.Errorf("scan order: got %q at %d, want %q", scanned[i], i, want[i])
		}
	}

	if err := s.Delete(ctx, prefix+"a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err = s.Get(ctx, prefix+"a")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if ok {
		t.Error("key still present after delete")
	}
}
