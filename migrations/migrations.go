// Package migrations embeds the schema for every supported store.
package migrations

import "embed"

// SQLite holds the goose-annotated sqlite/*.sql files
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres holds the goose-annotated postgres/*.sql files
//
//go:embed postgres/*.sql
var Postgres embed.FS

const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
