package container

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/dispatcher"
	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/application/service"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
	"github.com/garyjia/counsel-settlement/internal/infrastructure/lock"
	"github.com/garyjia/counsel-settlement/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/counsel-settlement/internal/infrastructure/persistence/repository"
	"github.com/garyjia/counsel-settlement/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/counsel-settlement/migrations"
	"github.com/garyjia/counsel-settlement/pkg/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components. Exactly one of SQLite
// and Postgres is set, according to the configured driver.
type DatabaseBundle struct {
	Driver         string
	SQLite         *database.DB
	Postgres       *pgxpool.Pool
	TransactionMgr port.TransactionManager
}

// Ping checks the underlying connection.
func (b *DatabaseBundle) Ping(ctx context.Context) error {
	if b.Postgres != nil {
		return b.Postgres.Ping(ctx)
	}
	return b.SQLite.PingContext(ctx)
}

// Close releases the underlying connection.
func (b *DatabaseBundle) Close() error {
	if b.Postgres != nil {
		b.Postgres.Close()
		return nil
	}
	return b.SQLite.Close()
}

// LockBundle holds the quota locker and, when distributed, its Redis client.
type LockBundle struct {
	Locker port.QuotaLocker
	Redis  *redis.Client
}

// ProvideDatabase opens the configured store, applies pending migrations and
// creates its transaction manager.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case "postgres":
		pool, err := database.NewPostgres(ctx, database.PostgresConfig{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := database.MigratePostgres(ctx, pool, migrations.Postgres, migrations.PostgresDir, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return &DatabaseBundle{
			Driver:         cfg.Driver,
			Postgres:       pool,
			TransactionMgr: postgres.NewTxManager(pool, logger),
		}, nil

	case "sqlite":
		db, err := database.New(database.Config{
			Path:            cfg.Path,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if _, err := database.NewMigrator(db, logger).RunMigrations(ctx, migrations.SQLite, migrations.SQLiteDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return &DatabaseBundle{
			Driver:         cfg.Driver,
			SQLite:         db,
			TransactionMgr: sqlite.NewDB(db.DB, logger),
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
}

// ProvideRepositories creates all repositories for the bundle's store.
// Returns RepositoryBundle containing all repository implementations.
func ProvideRepositories(db *DatabaseBundle, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if db.Postgres != nil {
		pool := db.Postgres
		return &RepositoryBundle{
			Teacher:    postgres.NewTeacherRepository(pool, logger),
			Client:     postgres.NewClientRepository(pool, logger),
			Voucher:    postgres.NewVoucherRepository(pool, logger),
			Enrollment: postgres.NewEnrollmentRepository(pool, logger),
			Schedule:   postgres.NewCenterScheduleRepository(pool, logger),
			Session:    postgres.NewSessionRepository(pool, logger),
			Usage:      postgres.NewUsageRepository(pool, logger),
		}, nil
	}

	if db.SQLite == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	sqlDB := db.SQLite.DB
	return &RepositoryBundle{
		Teacher:    repository.NewTeacherRepository(sqlDB, logger),
		Client:     repository.NewClientRepository(sqlDB, logger),
		Voucher:    repository.NewVoucherRepository(sqlDB, logger),
		Enrollment: repository.NewEnrollmentRepository(sqlDB, logger),
		Schedule:   repository.NewCenterScheduleRepository(sqlDB, logger),
		Session:    repository.NewSessionRepository(sqlDB, logger),
		Usage:      repository.NewUsageRepository(sqlDB, logger),
	}, nil
}

// ProvideQuotaLocker returns the Redis locker when an address is configured,
// and the in-process keyed mutex otherwise.
func ProvideQuotaLocker(ctx context.Context, cfg *RedisConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg == nil || cfg.Addr == "" {
		return &LockBundle{Locker: lock.NewKeyedMutex()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Using distributed quota locker", zap.String("addr", cfg.Addr))
	return &LockBundle{
		Locker: lock.NewRedisLocker(client, lock.RedisLockerConfig{
			TTL:         cfg.LockTTL,
			WaitTimeout: cfg.WaitTimeout,
		}, logger),
		Redis: client,
	}, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.QuotaLocker
	Settlement *SettlementConfig
	Events     port.EventPublisher // optional
	Logger     *zap.Logger
}

// EventBundle holds the in-process event dispatcher and its journal subscriber.
type EventBundle struct {
	Dispatcher dispatcher.Dispatcher
	Journal    *dispatcher.Journal
}

// ProvideEvents creates the dispatcher and registers the journal.
func ProvideEvents(logger *zap.Logger) *EventBundle {
	svcLogger := &zapLoggerAdapter{logger: logger}
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(svcLogger))
	journal := dispatcher.NewJournal(svcLogger)
	journal.Register(d)
	return &EventBundle{Dispatcher: d, Journal: journal}
}

// ProvideServices creates all application services.
// Returns ServiceBundle containing all service implementations.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Locker == nil {
		return nil, fmt.Errorf("quota locker is required")
	}
	if deps.Settlement == nil {
		return nil, fmt.Errorf("settlement config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	location, err := time.LoadLocation(deps.Settlement.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid settlement timezone: %w", err)
	}

	// Adapt zap.Logger to service.Logger interface
	svcLogger := &zapLoggerAdapter{logger: deps.Logger}

	repos := deps.Repos
	master := service.MasterData{
		Teachers:    repos.Teacher,
		Clients:     repos.Client,
		Vouchers:    repos.Voucher,
		Enrollments: repos.Enrollment,
		Schedules:   repos.Schedule,
	}
	fallback := settlement.Tariff{
		BaseFee:               deps.Settlement.DefaultBaseFee,
		ExtraFeePerTenMinutes: deps.Settlement.DefaultExtraFeePer10Min,
	}

	ledger := service.NewLedgerService(repos.Usage, repos.Enrollment, repos.Client, repos.Voucher, location, svcLogger)

	settlementService := service.NewSettlementService(
		master,
		repos.Session,
		repos.Usage,
		ledger,
		deps.Locker,
		deps.TxManager,
		service.SettlementOptions{
			Location:        location,
			FallbackTariff:  fallback,
			MaxQuotaRetries: deps.Settlement.MaxQuotaRetries,
			RetryBase:       deps.Settlement.RetryBase,
			Events:          deps.Events,
		},
		svcLogger,
	)

	opts := []service.Option{service.WithLocation(location)}
	if deps.Events != nil {
		opts = append(opts, service.WithEvents(deps.Events))
	}

	return &ServiceBundle{
		Ledger:     ledger,
		Settlement: settlementService,
		Report:     service.NewReportService(repos.Session, deps.TxManager, location, svcLogger, opts...),
		MasterData: service.NewMasterDataService(master, deps.TxManager, fallback, svcLogger, opts...),
		Location:   location,
	}, nil
}
