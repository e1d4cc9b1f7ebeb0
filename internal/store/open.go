package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes the storage backend.
type Options struct {
	Driver         string
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
	AutoMigrate    bool
}

// Handle is an opened store plus what is needed to migrate and close it.
type Handle struct {
	Store ConfigStore
	// DB is the database/sql view of the backend; nil for the memory driver.
	DB     *sql.DB
	Driver string

	closeFn func()
}

// Close releases the backend's connections.
func (h *Handle) Close() {
	if h.closeFn != nil {
		h.closeFn()
	}
}

// Migrator returns a schema migrator for the backend.
func (h *Handle) Migrator() (*Migrator, error) {
	if h.DB == nil {
		return nil, fmt.Errorf("driver %q has no schema", h.Driver)
	}
	return NewMigrator(h.Driver, h.DB)
}

// Open connects to the configured backend, retrying with exponential backoff
// until ConnectTimeout elapses, and applies migrations when AutoMigrate is set.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Handle, error) {
	var h *Handle
	switch opts.Driver {
	case DriverMemory, "":
		return &Handle{Store: NewMemoryConfigStore(), Driver: DriverMemory}, nil
	case DriverSQLite:
		db, err := sql.Open("sqlite", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		if err := connect(ctx, opts, logger, db.PingContext); err != nil {
			db.Close()
			return nil, err
		}
		h = &Handle{Store: NewSQLiteConfigStore(db), DB: db, Driver: DriverSQLite, closeFn: func() { db.Close() }}
	case DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		if opts.MaxConns > 0 {
			poolCfg.MaxConns = opts.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		if err := connect(ctx, opts, logger, pool.Ping); err != nil {
			pool.Close()
			return nil, err
		}
		db := stdlib.OpenDBFromPool(pool)
		h = &Handle{
			Store:  NewPgConfigStore(pool),
			DB:     db,
			Driver: DriverPostgres,
			closeFn: func() {
				db.Close()
				pool.Close()
			},
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}

	if opts.AutoMigrate {
		m, err := h.Migrator()
		if err != nil {
			h.Close()
			return nil, err
		}
		n, err := m.Up(ctx)
		if err != nil {
			h.Close()
			return nil, err
		}
		logger.Info("storage migrations applied", zap.String("driver", h.Driver), zap.Int("count", n))
	}
	return h, nil
}

func connect(ctx context.Context, opts Options, logger *zap.Logger, ping func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = opts.ConnectTimeout
	if policy.MaxElapsedTime <= 0 {
		policy.MaxElapsedTime = 30 * time.Second
	}

	err := backoff.RetryNotify(
		func() error { return ping(ctx) },
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			logger.Warn("storage connection failed, retrying",
				zap.String("driver", opts.Driver),
				zap.Error(err),
				zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		return fmt.Errorf("connect %s: %w", opts.Driver, err)
	}
	return nil
}
