// Package runstate persists per-asset outcomes in SQLite so an interrupted
// run resumes where it stopped and a finished run replays as no-ops.
package runstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome is the recorded fate of one asset operation.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Record is one ledger row, keyed by the asset's checksum+path identity.
// The checksum in the key means an asset edited between runs reads as new.
type Record struct {
	Identity  string
	Outcome   Outcome
	Operation string
	Detail    string
	RunID     string
	UpdatedAt time.Time
}

// Store manages run-state persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Get fetches the record for an identity, or nil when none exists.
func (s *Store) Get(ctx context.Context, identity string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM asset_outcomes WHERE identity = ?`, identity)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// IsDone reports whether the identity already completed in a prior run.
func (s *Store) IsDone(ctx context.Context, identity string) (bool, error) {
	rec, err := s.Get(ctx, identity)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Outcome == OutcomeDone, nil
}

// Put upserts the outcome for an identity. Reruns overwrite failed rows.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.Identity == "" {
		return errors.New("record identity is empty")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO asset_outcomes (identity, outcome, operation, detail, run_id, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(identity) DO UPDATE SET
             outcome = excluded.outcome,
             operation = excluded.operation,
             detail = excluded.detail,
             run_id = excluded.run_id,
             updated_at = excluded.updated_at`,
		rec.Identity,
		string(rec.Outcome),
		rec.Operation,
		nullableString(rec.Detail),
		rec.RunID,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// List returns records filtered by outcome set, or every record when no
// outcome is given, ordered by update time.
func (s *Store) List(ctx context.Context, outcomes ...Outcome) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordColumns + ` FROM asset_outcomes`
	orderClause := ` ORDER BY updated_at`

	if len(outcomes) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(outcomes))
		args := make([]any, len(outcomes))
		for i, outcome := range outcomes {
			args[i] = string(outcome)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE outcome IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats returns a count of records grouped by outcome.
func (s *Store) Stats(ctx context.Context) (map[Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM asset_outcomes GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("state stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Outcome]int)
	for rows.Next() {
		var outcome Outcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[outcome] = count
	}
	return stats, rows.Err()
}

// Clear removes every record, forcing the next run to start fresh.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM asset_outcomes`)
	if err != nil {
		return 0, fmt.Errorf("clear state: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed records so they are retried next run.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM asset_outcomes WHERE outcome = ?`, string(OutcomeFailed))
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

const recordColumns = "identity, outcome, operation, detail, run_id, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		identity   string
		outcomeStr string
		operation  string
		detail     sql.NullString
		runID      string
		updatedRaw string
	)
	if err := scanner.Scan(&identity, &outcomeStr, &operation, &detail, &runID, &updatedRaw); err != nil {
		return nil, err
	}

	rec := &Record{
		Identity:  identity,
		Outcome:   Outcome(outcomeStr),
		Operation: operation,
		Detail:    detail.String,
		RunID:     runID,
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
