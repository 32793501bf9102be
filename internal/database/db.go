package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the database connection and provides initialization
type DB struct {
	*sql.DB
}

// NewDB creates and initializes a new database connection
func NewDB(dbPath string) (*DB, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers and the pragmas below are per connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB}

	if err := db.initSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the record table. Each proxy key owns one row per field,
// which mirrors the hash layout used by the redis backend.
func (db *DB) initSchema() error {
	schema := `
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS proxy_fields (
    proxy_key TEXT NOT NULL,
    field     TEXT NOT NULL,
    value     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (proxy_key, field)
);

-- Index for pattern scans over keys
CREATE INDEX IF NOT EXISTS idx_proxy_fields_key ON proxy_fields(proxy_key);`

	_, err := db.Exec(schema)
	return err
}
