package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// MigrationsTable records applied schema versions in every store
const MigrationsTable = "schema_migrations"

// Migrator applies goose-annotated .sql files to a SQLite database
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// RunMigrations executes all pending migrations found under dir in fsys and
// returns how many were applied. Pass migrations.SQLite for the embedded
// schema or os.DirFS for a directory on disk.
func (m *Migrator) RunMigrations(ctx context.Context, fsys fs.FS, dir string) (int, error) {
	return runMigrations(ctx, goose.DialectSQLite3, m.db.DB, fsys, dir, m.logger)
}

// runMigrations is shared by the SQLite and PostgreSQL stores. Each file runs
// in its own transaction, so a failing file leaves earlier ones applied.
func runMigrations(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) (int, error) {
	logger.Info("Starting database migrations", zap.String("dir", dir), zap.String("dialect", string(dialect)))

	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to open migrations dir: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, sub,
		goose.WithTableName(MigrationsTable),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		var partial *goose.PartialError
		if errors.As(err, &partial) {
			logApplied(logger, partial.Applied)
			return len(partial.Applied), fmt.Errorf("failed to apply migration %s: %w",
				path.Base(partial.Failed.Source.Path), partial.Err)
		}
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}
	logApplied(logger, results)

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return len(results), fmt.Errorf("failed to get schema version: %w", err)
	}
	logger.Info("Database migrations completed successfully",
		zap.Int("applied", len(results)),
		zap.Int64("version", version))
	return len(results), nil
}

func logApplied(logger *zap.Logger, results []*goose.MigrationResult) {
	for _, r := range results {
		logger.Info("Applied migration",
			zap.Int64("version", r.Source.Version),
			zap.String("file", path.Base(r.Source.Path)),
			zap.Duration("duration", r.Duration))
	}
}
