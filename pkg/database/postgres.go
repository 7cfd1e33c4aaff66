package database

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// PostgresConfig holds PostgreSQL pool configuration
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgres opens a pgx connection pool and verifies it
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("driver", "postgres"),
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database))
	return pool, nil
}

// MigratePostgres applies the goose migrations under dir in fsys
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, logger *zap.Logger) error {
	// goose works on database/sql, so borrow a *sql.DB backed by the pool
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	_, err := runMigrations(ctx, goose.DialectPostgres, db, fsys, dir, logger)
	return err
}
