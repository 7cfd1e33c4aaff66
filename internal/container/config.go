// Package container provides dependency injection and lifecycle management
// for the counseling settlement service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis configuration; an empty Addr selects the in-process locker
	Redis RedisConfig

	// Settlement engine configuration
	Settlement SettlementConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the PostgreSQL connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the distributed quota lock settings.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	LockTTL     time.Duration
	WaitTimeout time.Duration
}

// SettlementConfig holds settlement engine settings.
type SettlementConfig struct {
	// Timezone decides which calendar month a session date falls in
	Timezone string

	// Fallback tariff used until a center schedule is saved
	DefaultBaseFee          int64
	DefaultExtraFeePer10Min int64

	MaxQuotaRetries uint64
	RetryBase       time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/settlement.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			LockTTL:     10 * time.Second,
			WaitTimeout: 5 * time.Second,
		},
		Settlement: SettlementConfig{
			Timezone:                "Asia/Seoul",
			DefaultBaseFee:          55000,
			DefaultExtraFeePer10Min: 10000,
			MaxQuotaRetries:         3,
			RetryBase:               20 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	// Validate database configuration
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	// Validate settlement configuration
	if _, err := time.LoadLocation(c.Settlement.Timezone); err != nil {
		return fmt.Errorf("invalid settlement timezone: %w", err)
	}

	return nil
}
