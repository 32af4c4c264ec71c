package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

// exercise runs the Store contract against any implementation
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Fresh game id: absence is a normal outcome.
	row, err := s.SelectLatestSnapshot(ctx, "g1")
	if err != nil {
		t.Fatalf("SelectLatestSnapshot returned error: %v", err)
	}
	if row != nil {
		t.Fatal("Expected nil row for fresh game id")
	}

	// Insert a few snapshots and read back the latest.
	for i := 0; i < 5; i++ {
		data := bytes.Repeat([]byte{'a' + byte(i)}, 100)
		if _, err := s.InsertSnapshot(ctx, "g1", data); err != nil {
			t.Fatalf("InsertSnapshot returned error: %v", err)
		}
	}

	row, err = s.SelectLatestSnapshot(ctx, "g1")
	if err != nil {
		t.Fatalf("SelectLatestSnapshot returned error: %v", err)
	}
	if row == nil {
		t.Fatal("Expected a row after inserts")
	}
	if !bytes.Equal(row.Data, bytes.Repeat([]byte{'e'}, 100)) {
		t.Error("Latest snapshot should be the last inserted")
	}

	// Retention pruning keeps the newest rows.
	if err := s.DeleteSnapshotsExcept(ctx, "g1", 3); err != nil {
		t.Fatalf("DeleteSnapshotsExcept returned error: %v", err)
	}
	row, err = s.SelectLatestSnapshot(ctx, "g1")
	if err != nil || row == nil {
		t.Fatalf("Latest snapshot should survive pruning (row=%v err=%v)", row, err)
	}

	// Other game ids stay independent.
	other, err := s.SelectLatestSnapshot(ctx, "g2")
	if err != nil {
		t.Fatalf("SelectLatestSnapshot returned error: %v", err)
	}
	if other != nil {
		t.Error("Pruning g1 must not create rows for g2")
	}
}

// TestMemStore tests the in-memory implementation
func TestMemStore(t *testing.T) {
	m := NewMemStore()
	exercise(t, m)

	if m.Count("g1") != 3 {
		t.Errorf("Expected 3 rows after pruning, got %d", m.Count("g1"))
	}
}

// TestSQLiteStore tests the sqlite implementation round trip
func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	defer s.Close()

	exercise(t, s)
}

// TestSQLiteStoreEmptyPath tests the guard against a missing path
func TestSQLiteStoreEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Error("Expected error for empty db path")
	}
}
