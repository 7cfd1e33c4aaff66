package config

import (
	"github.com/garyjia/counsel-settlement/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Redis: container.RedisConfig{
			Addr:        c.Redis.Addr,
			Password:    c.Redis.Password,
			DB:          c.Redis.DB,
			LockTTL:     c.Redis.LockTTL,
			WaitTimeout: c.Redis.WaitTimeout,
		},
		Settlement: container.SettlementConfig{
			Timezone:                c.Settlement.Timezone,
			DefaultBaseFee:          c.Settlement.DefaultBaseFee,
			DefaultExtraFeePer10Min: c.Settlement.DefaultExtraFeePer10Min,
			MaxQuotaRetries:         c.Settlement.MaxQuotaRetries,
			RetryBase:               c.Settlement.RetryBase,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
