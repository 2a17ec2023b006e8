// Package store persists restart state, operator fan settings and the
// reading log in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaRestartRecord = `
CREATE TABLE IF NOT EXISTS restart_record (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    restart_reason TEXT,
    updated_at INTEGER NOT NULL,
    reboots_after_fail INTEGER,
    temperature INTEGER,
    co2 INTEGER,
    rel_humidity INTEGER
);
`

const schemaFanSettings = `
CREATE TABLE IF NOT EXISTS fan_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const schemaReadings = `
CREATE TABLE IF NOT EXISTS readings (
    id TEXT PRIMARY KEY,
    taken_at INTEGER NOT NULL,
    co2 INTEGER NOT NULL,
    temperature INTEGER NOT NULL,
    rel_humidity INTEGER NOT NULL,
    fan_state TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_taken_at ON readings (taken_at);
`

// InitDB opens or creates the SQLite file at path, creating its directory,
// and ensures the tables exist.
func InitDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{schemaRestartRecord, schemaFanSettings, schemaReadings} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
