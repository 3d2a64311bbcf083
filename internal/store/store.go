package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptoservices/internal/logging"
)

// Store is the SQLite audit store. It implements logging.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the connection for maintenance tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Record implements logging.Recorder.
func (s *Store) Record(ctx context.Context, e logging.AuditEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Result == "" {
		e.Result = logging.ResultSuccess
	}

	var details sql.NullString
	if len(e.Details) > 0 {
		data, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (timestamp_ns, event_type, component, action, resource, scope, result, details, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UnixNano(), string(e.EventType), e.Component, e.Action,
		nullString(e.Resource), int64(e.Scope), e.Result, details, nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query selects audit events. Zero fields do not filter.
type Query struct {
	EventType logging.AuditEventType
	Since     time.Time
	Limit     int
}

// Recent returns matching events, newest first.
func (s *Store) Recent(ctx context.Context, q Query) ([]logging.AuditEvent, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ns, event_type, component, action, resource, scope, result, details, error
		FROM audit_events
		WHERE (? = '' OR event_type = ?) AND timestamp_ns >= ?
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ?`,
		string(q.EventType), string(q.EventType), sinceNanos(q.Since), q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []logging.AuditEvent
	for rows.Next() {
		var (
			e                      logging.AuditEvent
			ts, scope              int64
			typ                    string
			resource, details, msg sql.NullString
		)
		if err := rows.Scan(&ts, &typ, &e.Component, &e.Action, &resource, &scope, &e.Result, &details, &msg); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.EventType = logging.AuditEventType(typ)
		e.Resource = resource.String
		e.Scope = uint64(scope)
		e.Error = msg.String
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// Prune deletes events older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp_ns < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sinceNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
