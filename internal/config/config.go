package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	DSN             string        `mapstructure:"dsn"`    // postgres connection string
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig enables the distributed quota locker when Addr is set
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// SettlementConfig holds settlement engine settings
type SettlementConfig struct {
	Timezone                string        `mapstructure:"timezone"`
	DefaultBaseFee          int64         `mapstructure:"default_base_fee"`
	DefaultExtraFeePer10Min int64         `mapstructure:"default_extra_fee_per_10min"`
	MaxQuotaRetries         uint64        `mapstructure:"max_quota_retries"`
	RetryBase               time.Duration `mapstructure:"retry_base"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional .env file, the YAML file at
// configPath and environment variables, in increasing precedence
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SETTLEMENT")
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of path unless they are already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/settlement.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 10*time.Second)
	v.SetDefault("redis.wait_timeout", 5*time.Second)

	// Settlement defaults
	v.SetDefault("settlement.timezone", "Asia/Seoul")
	v.SetDefault("settlement.default_base_fee", 55000)
	v.SetDefault("settlement.default_extra_fee_per_10min", 10000)
	v.SetDefault("settlement.max_quota_retries", 3)
	v.SetDefault("settlement.retry_base", 20*time.Millisecond)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the credentials that are usually injected by the environment
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"database.driver": "DATABASE_DRIVER",
		"database.dsn":    "DATABASE_URL",
		"redis.addr":      "REDIS_ADDR",
		"redis.password":  "REDIS_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "SETTLEMENT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if _, err := time.LoadLocation(c.Settlement.Timezone); err != nil {
		return fmt.Errorf("settlement.timezone: %w", err)
	}
	if c.Settlement.DefaultBaseFee < 0 {
		return fmt.Errorf("settlement.default_base_fee must not be negative")
	}
	if c.Settlement.DefaultExtraFeePer10Min < 0 {
		return fmt.Errorf("settlement.default_extra_fee_per_10min must not be negative")
	}

	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis.lock_ttl must be positive")
	}

	return nil
}
