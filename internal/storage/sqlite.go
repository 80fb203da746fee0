package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryPath selects an ephemeral store that lives as long as its *sql.DB.
const MemoryPath = ":memory:"

// IsMemoryPath reports whether path names an in-memory SQLite database.
func IsMemoryPath(path string) bool {
	return path == MemoryPath || strings.HasPrefix(path, "file::memory:")
}

func sqliteDSN(path string) string {
	if IsMemoryPath(path) {
		return MemoryPath + "?_pragma=foreign_keys(1)"
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// OpenSQLite opens (creating if needed) the SQLite database at path. An
// in-memory database is pinned to a single connection, otherwise every pooled
// connection would see its own empty database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if !IsMemoryPath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if IsMemoryPath(path) {
		db.SetMaxOpenConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
