package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rule_runs (
    id               TEXT PRIMARY KEY,
    rule_id          TEXT    NOT NULL,
    rule_version     TEXT    NOT NULL,
    rule_name        TEXT    NOT NULL DEFAULT '',
    total_records    INTEGER NOT NULL,
    passed_records   INTEGER NOT NULL,
    failed_records   INTEGER NOT NULL,
    exception_counts TEXT    NOT NULL DEFAULT '{}',
    started_at       INTEGER NOT NULL,
    duration_ns      INTEGER NOT NULL,
    recorded_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rule_runs_recorded ON rule_runs (recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_rule_runs_rule ON rule_runs (rule_id, recorded_at DESC);
`

// SQLiteStore persists run records in a SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise audit database: %w", err)
		}
	}

	s := &SQLiteStore{db: db, logger: slog.Default().With("component", "audit.sqlite")}
	s.logger.Info("audit store opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) Store(ctx context.Context, rec *RunRecord) error {
	counts, err := json.Marshal(rec.ExceptionCounts)
	if err != nil {
		return fmt.Errorf("failed to encode exception counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_runs (id, rule_id, rule_version, rule_name, total_records, passed_records,
			failed_records, exception_counts, started_at, duration_ns, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RuleID, rec.RuleVersion, rec.RuleName, rec.TotalRecords, rec.PassedRecords,
		rec.FailedRecords, string(counts), rec.StartedAt.UnixNano(), int64(rec.Duration), rec.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]*RunRecord, error) {
	query := `SELECT id, rule_id, rule_version, rule_name, total_records, passed_records,
		failed_records, exception_counts, started_at, duration_ns, recorded_at
		FROM rule_runs WHERE 1=1`
	var args []any
	if q.RuleID != "" {
		query += ` AND rule_id = ?`
		args = append(args, q.RuleID)
	}
	if !q.Since.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, q.Since.UnixNano())
	}
	query += ` ORDER BY recorded_at DESC, rowid DESC LIMIT ?`
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		var r RunRecord
		var counts string
		var started, duration, recordedAt int64
		if err := rows.Scan(&r.ID, &r.RuleID, &r.RuleVersion, &r.RuleName, &r.TotalRecords,
			&r.PassedRecords, &r.FailedRecords, &counts, &started, &duration, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &r.ExceptionCounts); err != nil {
			return nil, fmt.Errorf("failed to decode exception counts of %s: %w", r.ID, err)
		}
		r.StartedAt = time.Unix(0, started)
		r.Duration = time.Duration(duration)
		r.RecordedAt = time.Unix(0, recordedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
