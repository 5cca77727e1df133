// Package audit persists a record of every tool call outcome. Writes are
// fire-and-forget from the execution path; a bounded buffer decouples
// callers from storage latency.
package audit

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Record is one tool call outcome
type Record struct {
	CallID     string
	Role       string
	Tool       string
	ProviderID string
	Outcome    string // "success" or an error kind
	DurationMs int64
	Timestamp  time.Time
}

// Sink accepts records without blocking the caller
type Sink interface {
	Append(rec Record)
}

// NopSink discards records
type NopSink struct{}

func (NopSink) Append(Record) {}

// Store is the persistence behind an AsyncSink
type Store interface {
	Write(rec Record) error
	Close() error
}

// AsyncSink buffers records on a bounded channel and writes them from a
// single background goroutine. When the buffer is full the record is
// dropped and counted rather than stalling the execution path.
type AsyncSink struct {
	store  Store
	ch     chan Record
	done   chan struct{}
	onDrop func()
}

// NewAsyncSink starts the writer goroutine. onDrop may be nil.
func NewAsyncSink(store Store, bufferSize int, onDrop func()) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	s := &AsyncSink{
		store:  store,
		ch:     make(chan Record, bufferSize),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
	go s.run()
	return s
}

// Append implements Sink. It never blocks.
func (s *AsyncSink) Append(rec Record) {
	select {
	case s.ch <- rec:
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
		log.Warn().Str("call_id", rec.CallID).Msg("Audit buffer full, record dropped")
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.ch {
		if err := s.store.Write(rec); err != nil {
			log.Error().Err(err).Str("call_id", rec.CallID).Msg("Audit write failed")
		}
	}
}

// Close flushes buffered records and closes the store
func (s *AsyncSink) Close() error {
	close(s.ch)
	<-s.done
	return s.store.Close()
}

// SQLiteStore persists records to a sqlite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the audit database
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("audit: database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS call_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id TEXT NOT NULL,
			role TEXT NOT NULL,
			tool TEXT NOT NULL,
			provider_id TEXT,
			outcome TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_call_records_created ON call_records(created_at);
		CREATE INDEX IF NOT EXISTS idx_call_records_tool ON call_records(tool);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Write implements Store
func (s *SQLiteStore) Write(rec Record) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO call_records (call_id, role, tool, provider_id, outcome, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.Role, rec.Tool, rec.ProviderID, rec.Outcome, rec.DurationMs, ts.Unix(),
	)
	return err
}

// Recent returns the newest records, most recent first
func (s *SQLiteStore) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT call_id, role, tool, provider_id, outcome, duration_ms, created_at
		 FROM call_records ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var createdAt int64
		if err := rows.Scan(&rec.CallID, &rec.Role, &rec.Tool, &rec.ProviderID,
			&rec.Outcome, &rec.DurationMs, &createdAt); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records older than the retention window and returns how
// many were removed.
func (s *SQLiteStore) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.Exec(`DELETE FROM call_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("removed", n).Msg("Pruned audit records")
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
