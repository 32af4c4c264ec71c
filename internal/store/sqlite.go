package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a single sqlite file. Blobs are
// zstd-compressed; world snapshots are mostly repeated terrain characters and
// compress an order of magnitude.
type SQLiteStore struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenSQLite opens (creating if needed) the snapshot database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer; the driver serializes access anyway and snapshots are
	// append-mostly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, enc: enc, dec: dec}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_game ON snapshots(game_id, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) InsertSnapshot(ctx context.Context, gameID string, data []byte) (SnapshotRow, error) {
	now := time.Now().UTC()
	blob := s.enc.EncodeAll(data, nil)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (game_id, data, created_at) VALUES (?, ?, ?)`,
		gameID, blob, now.Format(time.RFC3339Nano))
	if err != nil {
		return SnapshotRow{}, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return SnapshotRow{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return SnapshotRow{ID: id, GameID: gameID, Data: data, CreatedAt: now}, nil
}

func (s *SQLiteStore) DeleteSnapshotsExcept(ctx context.Context, gameID string, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE game_id = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE game_id = ? ORDER BY id DESC LIMIT ?
		)`, gameID, gameID, keep)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SelectLatestSnapshot(ctx context.Context, gameID string) (*SnapshotRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at FROM snapshots WHERE game_id = ? ORDER BY id DESC LIMIT 1`,
		gameID)

	var (
		id      int64
		blob    []byte
		created string
	)
	if err := row.Scan(&id, &blob, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	data, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, created)
	return &SnapshotRow{ID: id, GameID: gameID, Data: data, CreatedAt: ts}, nil
}

func (s *SQLiteStore) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}
