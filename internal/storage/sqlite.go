//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"caevo/internal/model"
	"caevo/internal/rule"

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

func (s *SQLiteStore) SaveRunStat(ctx context.Context, stat model.RunStat) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	if stat.SchemaVersion == 0 && stat.CodecVersion == 0 {
		stat.VersionedRecord = CurrentVersion()
	}
	payload, err := EncodeRunStat(stat)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO run_stats (run_id, started_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			started_at = excluded.started_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, stat.RunID, stat.StartedAt.UnixNano(), stat.SchemaVersion, stat.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) ListRunStats(ctx context.Context) ([]model.RunStat, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id, payload FROM run_stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunStat
	for rows.Next() {
		var (
			runID   string
			payload []byte
		)
		if err := rows.Scan(&runID, &payload); err != nil {
			return nil, err
		}
		stat, err := DecodeRunStat(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run stat %s: %w", runID, err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRunStats(out)
	return out, nil
}

func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID string, history []model.FitnessRecord) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.putPayload(ctx, "fitness_history", runID, payload)
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID string) ([]model.FitnessRecord, bool, error) {
	payload, ok, err := s.getPayload(ctx, "fitness_history", runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) SaveGenomes(ctx context.Context, runID string, genomes []rule.Table) error {
	payload, err := EncodeGenomes(genomes)
	if err != nil {
		return err
	}
	return s.putPayload(ctx, "genomes", runID, payload)
}

func (s *SQLiteStore) GetGenomes(ctx context.Context, runID string) ([]rule.Table, bool, error) {
	payload, ok, err := s.getPayload(ctx, "genomes", runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	genomes, err := DecodeGenomes(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode genomes %s: %w", runID, err)
	}
	return genomes, true, nil
}

func (s *SQLiteStore) AppendPivotRun(ctx context.Context, patternKey string, bits []int) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePivotRun(bits)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO pivot_runs (pattern_key, payload) VALUES (?, ?)`, patternKey, payload)
	return err
}

func (s *SQLiteStore) GetPivotRuns(ctx context.Context, patternKey string) ([][]int, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM pivot_runs WHERE pattern_key = ? ORDER BY id`, patternKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := [][]int{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		bits, err := DecodePivotRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode pivot run for %s: %w", patternKey, err)
		}
		runs = append(runs, bits)
	}
	return runs, rows.Err()
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

// putPayload upserts a run-keyed blob. table is never user input.
func (s *SQLiteStore) putPayload(ctx context.Context, table, runID string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) getPayload(ctx context.Context, table, runID string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_stats (
			run_id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fitness_history (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS genomes (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS pivot_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern_key TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
