package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/garyjia/counsel-settlement/internal/infrastructure/persistence/sqlite"
)

// executorFor returns the ambient transaction or db
func executorFor(ctx context.Context, db *sql.DB) sqlite.QueryExecutor {
	return sqlite.Executor(ctx, db)
}

// Timestamps are stored in UTC so that range predicates compare correctly
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
