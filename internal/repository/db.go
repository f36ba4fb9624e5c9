package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver           string // "postgres" (default) | "sqlite"
	DSN              string
	Name             string // logical store name for logs: "staging" | "verified"
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is one logical store. Postgres connections come from a pgx pool; SQLite goes through
// database/sql directly. Both are wrapped in an ent driver for dialect-aware query building.
type DB struct {
	name   string
	driver *entsql.Driver
	pool   *pgxpool.Pool
}

// Open connects to the store described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("store", cfg.Name, "driver", cfg.Driver)

	switch cfg.Driver {
	case "", DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case DriverSQLite:
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database url", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docflow-" + cfg.Name
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	// Wrap pool as *sql.DB for the ent driver
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{name: cfg.Name, driver: entsql.OpenDB(dialect.Postgres, db), pool: pool}, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return nil, err
	}
	// one connection keeps in-memory databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	logger.Info("successfully opened database")
	return &DB{name: cfg.Name, driver: entsql.OpenDB(dialect.SQLite, db)}, nil
}

// OpenSQLite opens an SQLite store; handy for tests and local runs.
func OpenSQLite(ctx context.Context, name, dsn string, logger *slog.Logger) (*DB, error) {
	return Open(ctx, Config{Driver: DriverSQLite, DSN: dsn, Name: name}, logger)
}

func (d *DB) Name() string    { return d.name }
func (d *DB) Dialect() string { return d.driver.Dialect() }
func (d *DB) SQL() *sql.DB    { return d.driver.DB() }

// Close closes the database connections gracefully
func Close(d *DB, logger *slog.Logger) {
	if d == nil {
		return
	}
	logger.Info("closing database connections", "store", d.name)
	if err := d.driver.Close(); err != nil {
		logger.Error("failed to close database", "store", d.name, "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// HealthCheck pings the store to catch DSN issues early.
func HealthCheck(ctx context.Context, d *DB, timeout time.Duration, logger *slog.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if d.pool != nil {
		err = d.pool.Ping(ctx)
	} else {
		err = d.SQL().PingContext(ctx)
	}
	if err != nil {
		logger.Error("database ping failed", "store", d.name, "error", err)
		return err
	}
	logger.Debug("database ping successful", "store", d.name)
	return nil
}
