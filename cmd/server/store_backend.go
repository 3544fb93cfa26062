package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fieldnotes.ai/internal/observation"
	"fieldnotes.ai/internal/persistence/store"
)

type storeBackend interface {
	observation.Gateway
	observation.ExpiryUpdater
	observation.Loader
	Close() error
}

// openStore selects the durable store from OBS_STORE_BACKEND (sqlite by default).
func openStore(ctx context.Context, dataDir string, disableDB bool, logger *log.Logger) (storeBackend, string, error) {
	if disableDB {
		return store.NewMemory(), "memory", nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("OBS_STORE_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory", "none", "off":
		return store.NewMemory(), "memory", nil
	case "sqlite":
		dbPath := strings.TrimSpace(os.Getenv("OBS_SQLITE_PATH"))
		if dbPath == "" {
			dbPath = filepath.Join(dataDir, "index", "observations.sqlite")
		}
		s, err := store.OpenSQLite(dbPath)
		if err != nil {
			return nil, "", err
		}
		logStore(ctx, logger, s, dbPath)
		return s, s.Backend(), nil
	case "postgres", "pg":
		dsn := strings.TrimSpace(os.Getenv("OBS_POSTGRES_DSN"))
		if dsn == "" {
			return nil, "", fmt.Errorf("OBS_STORE_BACKEND=%s but OBS_POSTGRES_DSN is empty", backend)
		}
		s, err := store.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, "", err
		}
		logStore(ctx, logger, s, "")
		return s, s.Backend(), nil
	default:
		return nil, "", fmt.Errorf("unsupported OBS_STORE_BACKEND: %s", backend)
	}
}

func logStore(ctx context.Context, logger *log.Logger, s *store.SQLStore, where string) {
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		logger.Printf("%s store: read schema version: %v", s.Backend(), err)
		return
	}
	if where != "" {
		logger.Printf("%s store at %s (schema v%d)", s.Backend(), where, v)
		return
	}
	logger.Printf("%s store (schema v%d)", s.Backend(), v)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
