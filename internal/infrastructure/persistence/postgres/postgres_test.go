package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/service"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
	"github.com/garyjia/counsel-settlement/migrations"
	"github.com/garyjia/counsel-settlement/pkg/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	return func() {}, nil
}

// newTestPool connects to SETTLEMENT_TEST_PG_DSN and empties every table
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("SETTLEMENT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SETTLEMENT_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	pool, err := database.NewPostgres(ctx, database.PostgresConfig{DSN: dsn, MaxOpenConns: 8}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.MigratePostgres(ctx, pool, migrations.Postgres, migrations.PostgresDir, zap.NewNop()))
	_, err = pool.Exec(ctx, `TRUNCATE session_vouchers, sessions, client_vouchers, teacher_clients, vouchers, clients, teachers, center_settings CASCADE`)
	require.NoError(t, err)
	return pool
}

func seed(t *testing.T, pool *pgxpool.Pool) service.MasterData {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	now := time.Now()

	master := service.MasterData{
		Teachers:    NewTeacherRepository(pool, logger),
		Clients:     NewClientRepository(pool, logger),
		Vouchers:    NewVoucherRepository(pool, logger),
		Enrollments: NewEnrollmentRepository(pool, logger),
		Schedules:   NewCenterScheduleRepository(pool, logger),
	}
	require.NoError(t, master.Teachers.Save(ctx, &entity.Teacher{ID: "t1", Name: "Kim", CommissionRate: 50, Active: true, CreatedAt: now}))
	require.NoError(t, master.Clients.Save(ctx, &entity.Client{ID: "c1", Name: "Lee", CreatedAt: now}))
	require.NoError(t, master.Vouchers.Save(ctx, &entity.Voucher{ID: "v1", Name: "Education", Category: entity.VoucherCategoryEducationOffice, MonthlySupportAmount: 200000, CreatedAt: now}))
	require.NoError(t, master.Enrollments.ReplaceForClient(ctx, "c1", []*entity.ClientVoucherEnrollment{
		{ClientID: "c1", VoucherID: "v1", MonthlySessionCount: 4, MonthlyPersonalBurden: 20000},
	}))
	return master
}

func TestPostgresRepositories(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	logger := zap.NewNop()
	master := seed(t, pool)

	enrollment, err := master.Enrollments.Get(ctx, "c1", "v1")
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.Equal(t, int64(20000), enrollment.MonthlyPersonalBurden)

	schedule, err := master.Schedules.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, schedule)

	sessions := NewSessionRepository(pool, logger)
	usage := NewUsageRepository(pool, logger)
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sessions.Create(ctx, &entity.Session{
		ID: "s1", Date: march, TeacherID: "t1", ClientID: "c1", DurationMinutes: 40,
		TotalFee: 50000, TotalSupport: 45000, FinalClientCost: 5000, CreatedAt: time.Now(),
	}))
	require.NoError(t, usage.Record(ctx, &entity.SessionVoucherUsage{SessionID: "s1", VoucherID: "v1", UsedAmount: 50000}))

	total, err := usage.SumUsage(ctx, "c1", "v1", march, march.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), total)

	before, err := usage.SumUsage(ctx, "c1", "v1", march.AddDate(0, -1, 0), march)
	require.NoError(t, err)
	assert.Zero(t, before)

	details, err := sessions.ListDetailed(ctx, march, march.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "Lee", details[0].ClientName)
	require.Len(t, details[0].Vouchers, 1)

	assert.ErrorIs(t, usage.LockQuota(ctx, "quota:c1:v1:2026-03"), errNoTransaction)

	deleted, err := sessions.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestPostgresConcurrentSubmits(t *testing.T) {
	pool := newTestPool(t)
	logger := zap.NewNop()
	master := seed(t, pool)

	sessions := NewSessionRepository(pool, logger)
	usage := NewUsageRepository(pool, logger)
	ledger := service.NewLedgerService(usage, master.Enrollments, master.Clients, master.Vouchers, time.UTC, nopLogger{})
	opts := service.DefaultSettlementOptions()
	opts.Location = time.UTC
	opts.RetryBase = time.Millisecond
	svc := service.NewSettlementService(master, sessions, usage, ledger, noopLocker{}, NewTxManager(pool, logger), opts, nopLogger{})

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.SubmitWithRetry(context.Background(), service.SubmitRequest{Request: settlement.Request{
				Date:            time.Date(2026, 3, 1+i, 10, 0, 0, 0, time.UTC),
				TeacherID:       "t1",
				ClientID:        "c1",
				DurationMinutes: 40,
				VoucherIDs:      []string{"v1"},
			}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	total, err := usage.SumUsage(context.Background(), "c1", "v1", march, march.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(200000), total, "advisory locks keep the pool within its limit")
}
