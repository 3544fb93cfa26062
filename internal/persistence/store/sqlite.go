package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		create_key TEXT,
		created_at_ms INTEGER NOT NULL,
		author TEXT NOT NULL,
		world TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		fx REAL NOT NULL,
		fy REAL NOT NULL,
		fz REAL NOT NULL,
		text TEXT NOT NULL,
		expires_at_ms INTEGER,
		active INTEGER NOT NULL DEFAULT 1
	);`,
}

var sqliteUpgrades = map[int][]string{
	2: {`ALTER TABLE observations ADD COLUMN create_key TEXT;`},
}

var sqliteIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_observations_active ON observations(active, id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_create_key ON observations(create_key);`,
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	ctx := context.Background()
	if err := initSchema(ctx, db, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := checkSchemaVersion(ctx, db, nil, sqliteUpgrades); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db, sqliteIndexes); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLStore{db: db, d: dialect{name: "sqlite"}}, nil
}

func initPragmas(db *sql.DB) error {
	// Records are small and written one at a time; WAL keeps readers (admin CLI) unblocked.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}
