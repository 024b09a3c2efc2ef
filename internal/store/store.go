// Package store is MediaButler's single persistence layer: durable SQLite
// storage for tracked files, processing logs, rollback points and user
// preferences, behind one unit-of-work commit path that stamps audit fields
// and dispatches queued domain events after a successful commit (spec §4.7).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chim331u/mediabutler/internal/clock"
	"github.com/chim331u/mediabutler/internal/fileservice"
)

const schemaVersion = 1

var _ fileservice.Repository = (*Store)(nil)

// DomainEvent is queued on a unit-of-work and dispatched at-least-once after
// a successful commit (spec §4.7). Handlers must be idempotent.
type DomainEvent struct {
	Type       string
	FileHash   string
	OccurredAt time.Time
	Payload    map[string]any
}

// EventSink receives domain events dispatched after commit. The eventbus
// package's memorybus/redisbus implementations satisfy this.
type EventSink interface {
	Publish(ctx context.Context, events []DomainEvent) error
}

type noopSink struct{}

func (noopSink) Publish(ctx context.Context, events []DomainEvent) error { return nil }

// Store is the single persistence layer (spec §4.7).
type Store struct {
	db     *sql.DB
	clock  clock.Clock
	events EventSink
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the clock used for audit-field stamping (tests).
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithEventSink overrides the domain-event sink (default: a no-op sink).
func WithEventSink(sink EventSink) Option {
	return func(s *Store) { s.events = sink }
}

// Open opens (creating if absent) the SQLite database at dbPath and runs
// pending migrations.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := openDB(dbPath, DefaultConnConfig())
	if err != nil {
		return nil, err
	}
	return newStore(db, opts...)
}

// OpenInMemory opens a shared in-memory database, for tests. WAL is
// unavailable for in-memory databases, so this uses a plain DSN without the
// journal_mode pragma.
func OpenInMemory(opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("store: open in-memory failed: %w", err)
	}
	db.SetMaxOpenConns(1) // a single shared connection keeps the in-memory DB alive and consistent
	return newStore(db, opts...)
}

func newStore(db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, clock: clock.Real{}, events: noopSink{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection pool for PRAGMA inspection in tests
// and for components (e.g. migrations tooling) that need raw access.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := `
	CREATE TABLE IF NOT EXISTS tracked_files (
		hash TEXT PRIMARY KEY,
		original_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		status TEXT NOT NULL,
		suggested_category TEXT,
		confidence REAL,
		classified_at TEXT,
		category TEXT,
		target_path TEXT,
		moved_to_path TEXT,
		moved_at TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_error_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		note TEXT,
		active INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_tracked_files_status ON tracked_files(status);
	CREATE INDEX IF NOT EXISTS idx_tracked_files_category ON tracked_files(category);
	CREATE INDEX IF NOT EXISTS idx_tracked_files_active ON tracked_files(active);

	CREATE TABLE IF NOT EXISTS processing_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_hash TEXT NOT NULL,
		level TEXT NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		details_json TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_processing_logs_hash ON processing_logs(file_hash);
	CREATE INDEX IF NOT EXISTS idx_processing_logs_category ON processing_logs(category);

	CREATE TABLE IF NOT EXISTS rollback_points (
		id TEXT PRIMARY KEY,
		file_hash TEXT NOT NULL,
		operation_type TEXT NOT NULL,
		original_path TEXT NOT NULL,
		target_path TEXT NOT NULL,
		info TEXT,
		created_at TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_rollback_points_hash ON rollback_points(file_hash, active);

	CREATE TABLE IF NOT EXISTS user_preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		value_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		note TEXT,
		active INTEGER NOT NULL DEFAULT 1
	);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// withUnitOfWork runs fn inside one transaction; on success, it commits and
// dispatches fn's returned domain events at-least-once (spec §4.7). On
// failure the transaction is rolled back and no events are dispatched.
func (s *Store) withUnitOfWork(ctx context.Context, fn func(tx *sql.Tx) ([]DomainEvent, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	events, err := fn(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if len(events) > 0 {
		_ = s.events.Publish(ctx, events)
	}
	return nil
}

// stampInsert applies spec §4.7's audit-stamping rule for a newly inserted
// row: created_at/updated_at become now_utc unless the caller already set a
// value more than 10s away from now (preserving a deliberately test-injected
// timestamp).
func stampInsert(now, createdAt, updatedAt time.Time) (time.Time, time.Time) {
	c := createdAt
	if c.IsZero() || absDuration(now.Sub(c)) <= 10*time.Second {
		c = now
	}
	u := updatedAt
	if u.IsZero() || absDuration(now.Sub(u)) <= 10*time.Second {
		u = now
	}
	return c, u
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func timeToStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func strToTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullableTimeToStr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func strToNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
