package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO checkpoints (run, tick, sim_time, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run, tick) DO UPDATE SET
			sim_time = excluded.sim_time,
			payload = excluded.payload
	`, cp.Run, cp.Tick, cp.Time, cp.Payload)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, run string, tick int32) (Checkpoint, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Checkpoint{}, false, err
	}

	cp := Checkpoint{Run: run, Tick: tick}
	err = db.QueryRowContext(ctx,
		`SELECT sim_time, payload FROM checkpoints WHERE run = ? AND tick = ?`,
		run, tick,
	).Scan(&cp.Time, &cp.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *SQLiteStore) Latest(ctx context.Context, run string) (Checkpoint, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Checkpoint{}, false, err
	}

	cp := Checkpoint{Run: run}
	err = db.QueryRowContext(ctx,
		`SELECT tick, sim_time, payload FROM checkpoints WHERE run = ? ORDER BY tick DESC LIMIT 1`,
		run,
	).Scan(&cp.Tick, &cp.Time, &cp.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, run string) ([]int32, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT tick FROM checkpoints WHERE run = ? ORDER BY tick`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []int32
	for rows.Next() {
		var tick int32
		if err := rows.Scan(&tick); err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run TEXT NOT NULL,
			tick INTEGER NOT NULL,
			sim_time REAL NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run, tick)
		);
	`)
	return err
}
