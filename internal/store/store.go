// Package store is the durable snapshot backend. Rooms treat it as an opaque
// insert/prune/select-latest service; save failures are logged by callers and
// never reach gameplay.
package store

import (
	"context"
	"sync"
	"time"
)

// SnapshotRow is one persisted snapshot.
type SnapshotRow struct {
	ID        int64
	GameID    string
	Data      []byte
	CreatedAt time.Time
}

// Store is the durable-store contract consumed by the room lifecycle.
type Store interface {
	// InsertSnapshot appends a snapshot row for gameID.
	InsertSnapshot(ctx context.Context, gameID string, data []byte) (SnapshotRow, error)
	// DeleteSnapshotsExcept prunes all but the most recent keep rows.
	DeleteSnapshotsExcept(ctx context.Context, gameID string, keep int) error
	// SelectLatestSnapshot returns the newest row, or nil when none exists.
	// Absence is a normal outcome (fresh room), not an error.
	SelectLatestSnapshot(ctx context.Context, gameID string) (*SnapshotRow, error)
	Close() error
}

// MemStore is an in-memory Store used by tests and by rooms configured
// without a database.
type MemStore struct {
	mu     sync.Mutex
	rows   map[string][]SnapshotRow
	nextID int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string][]SnapshotRow)}
}

func (m *MemStore) InsertSnapshot(_ context.Context, gameID string, data []byte) (SnapshotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	row := SnapshotRow{
		ID:        m.nextID,
		GameID:    gameID,
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now(),
	}
	m.rows[gameID] = append(m.rows[gameID], row)
	return row, nil
}

func (m *MemStore) DeleteSnapshotsExcept(_ context.Context, gameID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[gameID]
	if len(rows) > keep {
		m.rows[gameID] = append([]SnapshotRow(nil), rows[len(rows)-keep:]...)
	}
	return nil
}

func (m *MemStore) SelectLatestSnapshot(_ context.Context, gameID string) (*SnapshotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[gameID]
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[len(rows)-1]
	row.Data = append([]byte(nil), row.Data...)
	return &row, nil
}

func (m *MemStore) Close() error { return nil }

// Count reports stored rows for a game id. Test helper.
func (m *MemStore) Count(gameID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[gameID])
}
