// Package db provides the SQLite connection and schema for the command ledger.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	// Append-only audit of attribute writes and automatic adjustments.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS command_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			device_id TEXT NOT NULL,
			attribute TEXT,
			value TEXT,
			origin TEXT,
			ticket_id TEXT,
			reason TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_device_ts ON command_ledger(device_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_type_ts ON command_ledger(entry_type, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create command_ledger table: %w", err)
	}

	// One row per ticket: a proposal resolves once, so a duplicate
	// delivery of the same outcome must not record twice.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_ticket
		ON command_ledger(ticket_id)
		WHERE ticket_id IS NOT NULL AND ticket_id != '';
	`)
	if err != nil {
		return fmt.Errorf("failed to create idx_ledger_ticket index: %w", err)
	}

	return nil
}

// Reset removes every ledger entry.
func (db *DB) Reset() error {
	if _, err := db.Exec(`DELETE FROM command_ledger`); err != nil {
		return fmt.Errorf("failed to reset command ledger: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
