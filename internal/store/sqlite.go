package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, required for ARM32 cross-compilation
)

// ConnConfig holds the SQLite connection-pool and PRAGMA settings.
type ConnConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConnConfig returns settings appropriate for a single-process,
// write-heavy service on constrained hardware (spec §1: ARM32, 1 GB RAM).
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// openDB opens a SQLite connection pool with the mandatory PRAGMAs applied
// to every connection via the DSN (WAL journal, busy timeout, NORMAL sync,
// foreign keys on).
func openDB(dbPath string, cfg ConnConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	return db, nil
}
