// Package storage provides SQLite-backed query logging.
//
// Every search the server handles is recorded best-effort: dataset,
// query text, requested topK, outcome, result count and duration.
// The log backs the operational CLI and is never on the request's
// critical path.
//
// Information Hiding:
// - SQLite connection management hidden
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// QueryRecord is one logged search.
type QueryRecord struct {
	ID          string
	DatasetID   string
	Query       string
	TopK        int
	ResultCount int
	DurationMs  int64
	Status      string // "ok" or "error"
	Error       string
	CreatedAt   int64 // unix seconds
}

// QueryLog stores search records in a SQLite database file.
type QueryLog struct {
	db *sql.DB
}

// OpenQueryLog opens or creates a query log at the given path.
// Creates parent directories if they don't exist.
func OpenQueryLog(path string) (*QueryLog, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create query log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query log database: %w", err)
	}

	log := &QueryLog{db: db}
	if err := log.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize query log schema: %w", err)
	}

	return log, nil
}

// NewQueryLogInMemory creates an in-memory query log (useful for testing).
func NewQueryLogInMemory() (*QueryLog, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory query log: %w", err)
	}

	log := &QueryLog{db: db}
	if err := log.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize query log schema: %w", err)
	}

	return log, nil
}

// Close closes the database connection.
func (l *QueryLog) Close() error {
	return l.db.Close()
}

func (l *QueryLog) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			dataset_id TEXT NOT NULL,
			query TEXT NOT NULL,
			top_k INTEGER NOT NULL,
			result_count INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_queries_dataset
		ON queries(dataset_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_queries_created
		ON queries(created_at DESC);
	`

	_, err := l.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts one search record.
func (l *QueryLog) Record(ctx context.Context, rec QueryRecord) error {
	var errVal interface{}
	if rec.Error != "" {
		errVal = rec.Error
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO queries
		(id, dataset_id, query, top_k, result_count, duration_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.DatasetID,
		rec.Query,
		rec.TopK,
		rec.ResultCount,
		rec.DurationMs,
		rec.Status,
		errVal,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (l *QueryLog) Recent(ctx context.Context, limit int) ([]QueryRecord, error) {
	return l.queryRecords(ctx, `
		SELECT id, dataset_id, query, top_k, result_count, duration_ms, status, error, created_at
		FROM queries
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
}

// RecentForDataset returns the most recent records for one dataset,
// newest first.
func (l *QueryLog) RecentForDataset(ctx context.Context, datasetID string, limit int) ([]QueryRecord, error) {
	return l.queryRecords(ctx, `
		SELECT id, dataset_id, query, top_k, result_count, duration_ms, status, error, created_at
		FROM queries
		WHERE dataset_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, datasetID, limit)
}

// queryRecords executes a query and scans rows into QueryRecord slice.
func (l *QueryLog) queryRecords(ctx context.Context, query string, args ...interface{}) ([]QueryRecord, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	records := []QueryRecord{} // Start with empty slice, not nil
	for rows.Next() {
		var rec QueryRecord
		var errStr sql.NullString
		err := rows.Scan(
			&rec.ID,
			&rec.DatasetID,
			&rec.Query,
			&rec.TopK,
			&rec.ResultCount,
			&rec.DurationMs,
			&rec.Status,
			&errStr,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if errStr.Valid {
			rec.Error = errStr.String
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}

	return records, nil
}
