// Package backend selects and builds the storage backend.
package backend

import (
	"fmt"

	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/storage"
	"tally/internal/storage/memory"
)

// Result bundles the store with its cleanup hook.
type Result struct {
	Store   storage.Store
	Cleanup func() error
}

// Open builds the store named by cfg.DataBackend. The memory backend is
// for development and tests; production runs on sqlite.
func Open(cfg *config.Config, logger *log.Logger) (*Result, error) {
	logger = logger.WithComponent(log.ComponentBackend)

	switch cfg.DataBackend {
	case "sqlite":
		store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		logger.Info("sqlite backend ready", "db_path", cfg.SQLiteDBPath)
		return &Result{Store: store, Cleanup: store.Close}, nil

	case "memory":
		store := memory.NewStore()
		logger.Info("memory backend ready")
		return &Result{Store: store, Cleanup: store.Close}, nil
	}
	return nil, fmt.Errorf("unsupported data backend %q", cfg.DataBackend)
}
