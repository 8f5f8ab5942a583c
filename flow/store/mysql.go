package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tessellate-ai/floweave/flow/emit"
)

// MySQLJournal persists run traces in MySQL/MariaDB, for deployments
// where several engine processes share one trace store.
//
// DSN format follows go-sql-driver/mysql:
//
//	user:password@tcp(host:3306)/floweave?parseTime=true
//
// Keep credentials out of source; read the DSN from the environment.
type MySQLJournal struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLJournal connects, configures pooling, and migrates the schema.
func NewMySQLJournal(dsn string) (*MySQLJournal, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	j := &MySQLJournal{db: db}
	if err := j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *MySQLJournal) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS run_events (
	run_id  VARCHAR(64)  NOT NULL,
	seq     BIGINT       NOT NULL,
	type    VARCHAR(32)  NOT NULL,
	time    VARCHAR(40)  NOT NULL,
	node_id VARCHAR(255) NOT NULL DEFAULT '',
	delta   TEXT,
	output  JSON,
	error   TEXT,
	PRIMARY KEY (run_id, seq),
	INDEX idx_run_events_run (run_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate run_events: %w", err)
	}
	return nil
}

// Append records one event.
func (j *MySQLJournal) Append(ctx context.Context, ev emit.Event) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}

	output, err := marshalOutput(ev.Output)
	if err != nil {
		return err
	}
	var delta, errText sql.NullString
	if ev.Delta != "" {
		delta = sql.NullString{String: ev.Delta, Valid: true}
	}
	if ev.Err != "" {
		errText = sql.NullString{String: ev.Err, Valid: true}
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, seq, type, time, node_id, delta, output, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Seq, string(ev.Type), ev.Time.UTC().Format(time.RFC3339Nano),
		ev.NodeID, delta, output, errText)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Trace returns a run's events in sequence order.
func (j *MySQLJournal) Trace(ctx context.Context, runID string) ([]emit.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, type, time, node_id, COALESCE(delta, ''), output, COALESCE(error, '')
		 FROM run_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows, runID)
}

// Runs returns recorded run IDs, newest first by first event time.
func (j *MySQLJournal) Runs(ctx context.Context, limit int) ([]string, error) {
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

// Close closes the connection pool.
func (j *MySQLJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
