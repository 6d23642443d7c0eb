package database

import (
	"fmt"
	"os"
	"path/filepath"

	"por-go/internal/config"
)

// NewStoreFromConfig creates a SQLiteStore based on the database config type.
// Type "memory" uses an in-memory database, which is useful for tests and
// throwaway deployments.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite database requires data_dir to be set")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "verifications.db"))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
