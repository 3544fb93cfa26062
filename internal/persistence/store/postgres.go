package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	postgresDriver = "pgx"
	// DefaultPostgresDSN is used when OpenPostgres receives an empty DSN.
	DefaultPostgresDSN = "postgres://localhost/fieldnotes?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS observations (
		id BIGSERIAL PRIMARY KEY,
		create_key TEXT,
		created_at_ms BIGINT NOT NULL,
		author TEXT NOT NULL,
		world TEXT NOT NULL,
		x DOUBLE PRECISION NOT NULL,
		y DOUBLE PRECISION NOT NULL,
		z DOUBLE PRECISION NOT NULL,
		fx DOUBLE PRECISION NOT NULL,
		fy DOUBLE PRECISION NOT NULL,
		fz DOUBLE PRECISION NOT NULL,
		text TEXT NOT NULL,
		expires_at_ms BIGINT,
		active SMALLINT NOT NULL DEFAULT 1
	)`,
	// Tables created before meta existed lack create_key.
	`ALTER TABLE observations ADD COLUMN IF NOT EXISTS create_key TEXT`,
}

var postgresIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_observations_active ON observations(active, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_create_key ON observations(create_key)`,
}

// OpenPostgres connects with dsn (DefaultPostgresDSN when empty) and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		dsn = DefaultPostgresDSN
	}
	openMu.Lock()
	db, err := sqlOpen(postgresDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initSchema(ctx, db, postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := checkSchemaVersion(ctx, db, rebindDollar, nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db, postgresIndexes); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLStore{db: db, d: dialect{name: "postgres", rebind: rebindDollar}}, nil
}
