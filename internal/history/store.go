package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/persistence/sqlite"
)

const schemaVersion = 1

// Store keeps one row per capture run in SQLite.
type Store struct {
	DB *sql.DB
}

// NewStore opens (or creates) the run history database and applies
// pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		device TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT NOT NULL,
		message TEXT NOT NULL,
		percent INTEGER NOT NULL,
		reference_path TEXT NOT NULL,
		capture_path TEXT NOT NULL,
		started_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		ended_at_ms INTEGER NOT NULL,
		vmaf REAL,
		plan_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		scores_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_ms);
	CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Put inserts or updates the row keyed by rec.SessionID. The nested
// plan, result and scores structs travel as JSON columns; the pooled
// VMAF score is duplicated into its own column so summaries can read
// it without decoding JSON. started_at_ms is fixed at first insert.
func (s *Store) Put(ctx context.Context, rec *model.SessionRecord) error {
	planJSON, _ := json.Marshal(rec.Plan)
	resultJSON, _ := json.Marshal(rec.Result)
	scoresJSON, _ := json.Marshal(rec.Scores)

	var vmaf sql.NullFloat64
	if rec.Scores != nil {
		vmaf = sql.NullFloat64{Float64: rec.Scores.VMAF, Valid: true}
	}

	query := `
	INSERT INTO runs (
		run_id, device, state, reason, message, percent,
		reference_path, capture_path, started_at_ms, updated_at_ms,
		ended_at_ms, vmaf, plan_json, result_json, scores_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		device = excluded.device,
		state = excluded.state,
		reason = excluded.reason,
		message = excluded.message,
		percent = excluded.percent,
		reference_path = excluded.reference_path,
		capture_path = excluded.capture_path,
		updated_at_ms = excluded.updated_at_ms,
		ended_at_ms = excluded.ended_at_ms,
		vmaf = excluded.vmaf,
		plan_json = excluded.plan_json,
		result_json = excluded.result_json,
		scores_json = excluded.scores_json
	`

	_, err := s.DB.ExecContext(ctx, query,
		rec.SessionID, rec.Device, rec.State, rec.Reason, rec.Message, rec.Percent,
		rec.ReferencePath, rec.CapturePath, rec.StartedAtMs, rec.UpdatedAtMs,
		rec.EndedAtMs, vmaf, planJSON, resultJSON, scoresJSON,
	)
	return err
}

// Get returns the record for id, or nil when no such run exists.
func (s *Store) Get(ctx context.Context, id string) (*model.SessionRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT * FROM runs WHERE run_id = ?`, id)
	return scanRun(row)
}

// ListQuery narrows and pages List results.
type ListQuery struct {
	State  model.SessionState // empty matches every state
	Limit  int
	Offset int
}

// List returns a page of runs ordered newest first, plus the total
// number of rows matching the filter.
func (s *Store) List(ctx context.Context, q ListQuery) ([]*model.SessionRecord, int, error) {
	where := ""
	args := []interface{}{}
	if q.State != "" {
		where = " WHERE state = ?"
		args = append(args, q.State)
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT * FROM runs"+where+" ORDER BY started_at_ms DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var results []*model.SessionRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	var planJSON, resultJSON, scoresJSON []byte
	var vmaf sql.NullFloat64

	err := scanner.Scan(
		&rec.SessionID, &rec.Device, &rec.State, &rec.Reason, &rec.Message, &rec.Percent,
		&rec.ReferencePath, &rec.CapturePath, &rec.StartedAtMs, &rec.UpdatedAtMs,
		&rec.EndedAtMs, &vmaf, &planJSON, &resultJSON, &scoresJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	// A nil pointer marshals as the JSON literal null, which
	// unmarshals back to nil, so absent sections round-trip.
	_ = json.Unmarshal(planJSON, &rec.Plan)
	_ = json.Unmarshal(resultJSON, &rec.Result)
	_ = json.Unmarshal(scoresJSON, &rec.Scores)

	return &rec, nil
}
