package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/application/service"
	"github.com/garyjia/counsel-settlement/internal/domain/event"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *DatabaseBundle
	repositories *RepositoryBundle

	// Infrastructure - Locking
	locker      port.QuotaLocker
	redisClient *redis.Client

	// Application
	events   *EventBundle
	services *ServiceBundle

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Teacher    port.TeacherRepository
	Client     port.ClientRepository
	Voucher    port.VoucherRepository
	Enrollment port.EnrollmentRepository
	Schedule   port.CenterScheduleRepository
	Session    port.SessionRepository
	Usage      port.UsageRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Ledger     service.LedgerService
	Settlement service.SettlementService
	Report     service.ReportService
	MasterData service.MasterDataService

	// Location is the timezone calendar months are computed in
	Location *time.Location
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Quota locker
// 3. Event dispatcher and application services
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", c.database.Driver))

	// Step 2: Initialize quota locker
	if err := c.initLocker(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize quota locker: %w", err)
	}
	c.logger.Info("Quota locker initialized", zap.Bool("distributed", c.redisClient != nil))

	// Step 3: Initialize event dispatcher and application services
	if err := c.initServices(); err != nil {
		c.closeEvents()
		c.closeLocker()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Drain published events (reverse of step 3)
	if err := c.closeEvents(); err != nil {
		c.logger.Error("Failed to close event dispatcher", zap.Error(err))
		errs = append(errs, fmt.Errorf("close events: %w", err))
	}

	// Step 2: Close quota locker (reverse of step 2)
	if err := c.closeLocker(); err != nil {
		c.logger.Error("Failed to close redis client", zap.Error(err))
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}

	// Step 3: Close database (reverse of step 1)
	if err := c.closeDatabase(); err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	unhealthy := func(name, msg string) {
		status.Components[name] = ComponentHealth{Healthy: false, Message: msg}
		status.Overall = false
	}

	// Check database
	if c.database != nil {
		if err := c.database.Ping(ctx); err != nil {
			unhealthy("database", fmt.Sprintf("ping failed: %v", err))
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true, Message: c.database.Driver}
		}
	} else {
		unhealthy("database", "not initialized")
	}

	// Check quota locker
	switch {
	case c.redisClient != nil:
		if err := c.redisClient.Ping(ctx).Err(); err != nil {
			unhealthy("quota_locker", fmt.Sprintf("redis ping failed: %v", err))
		} else {
			status.Components["quota_locker"] = ComponentHealth{Healthy: true, Message: "redis"}
		}
	case c.locker != nil:
		status.Components["quota_locker"] = ComponentHealth{Healthy: true, Message: "in-process"}
	default:
		unhealthy("quota_locker", "not initialized")
	}

	// Check services
	if c.services != nil {
		status.Components["services"] = ComponentHealth{Healthy: true}
	} else {
		unhealthy("services", "not initialized")
	}

	// Events are informational only
	if c.events != nil {
		stats := c.events.Journal.Stats()
		status.Components["events"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("%d sessions settled since start", stats.Counts[event.TypeSessionSettled]),
		}
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	// Use provider to open the store and apply migrations
	db, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = db

	// Use provider to create repositories
	repos, err := ProvideRepositories(db, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}

	c.repositories = repos
	return nil
}

// initLocker selects the quota locker using providers.
func (c *Container) initLocker() error {
	bundle, err := ProvideQuotaLocker(c.ctx, &c.config.Redis, c.logger)
	if err != nil {
		return err
	}
	c.locker = bundle.Locker
	c.redisClient = bundle.Redis
	return nil
}

// initServices initializes the event dispatcher and all application services using providers.
func (c *Container) initServices() error {
	c.events = ProvideEvents(c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.database.TransactionMgr,
		Locker:     c.locker,
		Settlement: &c.config.Settlement,
		Events:     c.events.Dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

func (c *Container) closeEvents() error {
	if c.events == nil {
		return nil
	}
	err := c.events.Dispatcher.Close()
	c.events = nil
	return err
}

func (c *Container) closeLocker() error {
	if c.redisClient == nil {
		return nil
	}
	err := c.redisClient.Close()
	c.redisClient = nil
	if err == nil {
		c.logger.Info("Redis client closed")
	}
	return err
}

func (c *Container) closeDatabase() error {
	if c.database == nil {
		return nil
	}
	err := c.database.Close()
	c.database = nil
	if err == nil {
		c.logger.Info("Database closed")
	}
	return err
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	if c.database == nil {
		return nil
	}
	return c.database.TransactionMgr
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// QuotaLocker returns the quota locker.
func (c *Container) QuotaLocker() port.QuotaLocker {
	return c.locker
}

// Events returns the event dispatcher and journal.
func (c *Container) Events() *EventBundle {
	return c.events
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns the container's logger in key-value form.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
