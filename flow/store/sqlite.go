package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tessellate-ai/floweave/flow/emit"
)

// SQLiteJournal persists run traces in a single-file SQLite database.
// Zero-setup persistence for development, single-process deployments,
// and local tooling; use MySQLJournal when multiple processes share a
// trace store.
//
// WAL mode is enabled so trace readers don't block the appending run.
//
//	journal, err := store.NewSQLiteJournal("./runs.db")
//	// ":memory:" works for tests
type SQLiteJournal struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteJournal opens (creating if needed) the database at path and
// migrates the schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows one writer; a larger pool just queues on the lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS run_events (
	run_id  TEXT    NOT NULL,
	seq     INTEGER NOT NULL,
	type    TEXT    NOT NULL,
	time    TEXT    NOT NULL,
	node_id TEXT    NOT NULL DEFAULT '',
	delta   TEXT    NOT NULL DEFAULT '',
	output  TEXT,
	error   TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate run_events: %w", err)
	}
	return nil
}

// Append records one event.
func (j *SQLiteJournal) Append(ctx context.Context, ev emit.Event) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}

	output, err := marshalOutput(ev.Output)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, seq, type, time, node_id, delta, output, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Seq, string(ev.Type), ev.Time.UTC().Format(time.RFC3339Nano),
		ev.NodeID, ev.Delta, output, ev.Err)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Trace returns a run's events in sequence order.
func (j *SQLiteJournal) Trace(ctx context.Context, runID string) ([]emit.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, type, time, node_id, delta, output, error
		 FROM run_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows, runID)
}

// Runs returns recorded run IDs, newest first by first event time.
func (j *SQLiteJournal) Runs(ctx context.Context, limit int) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	query := `SELECT run_id FROM run_events GROUP BY run_id ORDER BY MIN(time) DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func marshalOutput(output any) (sql.NullString, error) {
	if output == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode event output: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanEvents(rows *sql.Rows, runID string) ([]emit.Event, error) {
	var trace []emit.Event
	for rows.Next() {
		var (
			ev     emit.Event
			typ    string
			ts     string
			output sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &typ, &ts, &ev.NodeID, &ev.Delta, &output, &ev.Err); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.RunID = runID
		ev.Type = emit.Type(typ)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Time = t
		}
		if output.Valid {
			var v any
			if err := json.Unmarshal([]byte(output.String), &v); err == nil {
				ev.Output = v
			}
		}
		trace = append(trace, ev)
	}
	return trace, rows.Err()
}
