package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
	repo "github.com/joseph-ayodele/resume-scanner/internal/repository"
)

// Store is the status backend selected by configuration plus its lifecycle hooks.
type Store struct {
	repo.TaskStatusStore
	db *repo.DB
}

// OpenStore builds the configured status store, connecting and migrating SQL backends.
func OpenStore(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Driver == "" || cfg.Driver == "memory" {
		logger.Info("using in-memory status store")
		return &Store{TaskStatusStore: repo.NewMemoryStore()}, nil
	}

	db, err := repo.Open(ctx, repo.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
		DialTimeout:     cfg.DialTimeout,
		ConnectRetry:    cfg.ConnectRetry,
	}, logger)
	if err != nil {
		return nil, err
	}
	sqlStore := repo.NewSQLStore(db, logger)
	if err := sqlStore.Migrate(ctx); err != nil {
		db.Close(logger)
		return nil, err
	}
	return &Store{TaskStatusStore: sqlStore, db: db}, nil
}

// Ping checks the database behind the store; the in-memory store is always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.HealthCheck(ctx, 3*time.Second)
}

// Close closes the database connections gracefully
func (s *Store) Close(logger *slog.Logger) {
	if s.db != nil {
		s.db.Close(logger)
	}
}
