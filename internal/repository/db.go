package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/cenkalti/backoff"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver          string // "postgres" | "sqlite"
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
	ConnectRetry    time.Duration // total time spent retrying the first connect; 0 = single attempt
}

// DB bundles the ent SQL driver with whatever owns the underlying connections.
type DB struct {
	Driver  *entsql.Driver
	Dialect string
	Pool    *pgxpool.Pool // nil for sqlite
	sqlDB   *sql.DB
}

// Open connects to Postgres through a pgx pool or to SQLite through modernc, and
// wraps the connection for ent. The first connect is retried with exponential
// backoff so the service can start before its database.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	logger.Info("connecting to database", "driver", cfg.Driver)

	var (
		db  *DB
		err error
	)
	operation := func() error {
		switch cfg.Driver {
		case "postgres":
			db, err = openPostgres(ctx, cfg)
		case "sqlite":
			db, err = openSQLite(ctx, cfg)
		default:
			return backoff.Permanent(fmt.Errorf("unsupported database driver %q", cfg.Driver))
		}
		if err != nil {
			logger.Warn("database connect attempt failed", "driver", cfg.Driver, "error", err)
		}
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxElapsedTime = cfg.ConnectRetry
	var policy backoff.BackOff = backoff.WithContext(expBackoff, ctx)
	if cfg.ConnectRetry <= 0 {
		policy = backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	if err := backoff.Retry(operation, policy); err != nil {
		logger.Error("failed to connect to database", "driver", cfg.Driver, "error", err)
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	logger.Info("successfully connected to database", "driver", cfg.Driver)
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.ConnConfig.Tracer = otelpgx.NewTracer()
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "resume-scanner"

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, err
	}

	// Wrap pool as *sql.DB for ent
	sqlDB := stdlib.OpenDBFromPool(pool)
	return &DB{
		Driver:  entsql.OpenDB(dialect.Postgres, sqlDB),
		Dialect: dialect.Postgres,
		Pool:    pool,
		sqlDB:   sqlDB,
	}, nil
}

func openSQLite(ctx context.Context, cfg Config) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	// one connection: serializes writers and keeps ":memory:" databases intact
	sqlDB.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &DB{
		Driver:  entsql.OpenDB(dialect.SQLite, sqlDB),
		Dialect: dialect.SQLite,
		sqlDB:   sqlDB,
	}, nil
}

// Close closes the database connections gracefully
func (d *DB) Close(logger *slog.Logger) {
	if d == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if err := d.Driver.Close(); err != nil {
		logger.Error("failed to close sql driver", "error", err)
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database within timeout.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if d.Pool != nil {
		return d.Pool.Ping(ctx)
	}
	return d.sqlDB.PingContext(ctx)
}
