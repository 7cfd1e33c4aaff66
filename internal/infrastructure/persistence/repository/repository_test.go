package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/application/service"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
	"github.com/garyjia/counsel-settlement/internal/infrastructure/lock"
	"github.com/garyjia/counsel-settlement/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/counsel-settlement/migrations"
	"github.com/garyjia/counsel-settlement/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// noopLocker leaves all serialization to the database
type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	return func() {}, nil
}

type repos struct {
	db          *database.DB
	tx          *sqlite.DB
	teachers    port.TeacherRepository
	clients     port.ClientRepository
	vouchers    port.VoucherRepository
	enrollments port.EnrollmentRepository
	schedules   port.CenterScheduleRepository
	sessions    port.SessionRepository
	usage       port.UsageRepository
}

func newRepos(t *testing.T, maxOpenConns int) *repos {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "settlement.db"),
		MaxOpenConns: maxOpenConns,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, logger).RunMigrations(context.Background(), migrations.SQLite, migrations.SQLiteDir)
	require.NoError(t, err)

	return &repos{
		db:          db,
		tx:          sqlite.NewDB(db.DB, logger),
		teachers:    NewTeacherRepository(db.DB, logger),
		clients:     NewClientRepository(db.DB, logger),
		vouchers:    NewVoucherRepository(db.DB, logger),
		enrollments: NewEnrollmentRepository(db.DB, logger),
		schedules:   NewCenterScheduleRepository(db.DB, logger),
		sessions:    NewSessionRepository(db.DB, logger),
		usage:       NewUsageRepository(db.DB, logger),
	}
}

func (r *repos) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.teachers.Save(ctx, &entity.Teacher{ID: "t1", Name: "Kim", CommissionRate: 50, Active: true, CreatedAt: now}))
	require.NoError(t, r.clients.Save(ctx, &entity.Client{ID: "c1", Name: "Lee", CreatedAt: now}))
	require.NoError(t, r.vouchers.Save(ctx, &entity.Voucher{ID: "v1", Name: "Education", Category: entity.VoucherCategoryEducationOffice, MonthlySupportAmount: 200000, CreatedAt: now}))
	require.NoError(t, r.vouchers.Save(ctx, &entity.Voucher{ID: "v2", Name: "Government", Category: entity.VoucherCategoryGovernment, MonthlySupportAmount: 60000, CreatedAt: now}))
	require.NoError(t, r.enrollments.ReplaceForClient(ctx, "c1", []*entity.ClientVoucherEnrollment{
		{ClientID: "c1", VoucherID: "v1", MonthlySessionCount: 4, MonthlyPersonalBurden: 20000},
	}))
}

func (r *repos) master() service.MasterData {
	return service.MasterData{
		Teachers:    r.teachers,
		Clients:     r.clients,
		Vouchers:    r.vouchers,
		Enrollments: r.enrollments,
		Schedules:   r.schedules,
	}
}

func (r *repos) settlementService(locker port.QuotaLocker) service.SettlementService {
	return r.settlementServiceIn(locker, time.UTC)
}

func (r *repos) settlementServiceIn(locker port.QuotaLocker, loc *time.Location) service.SettlementService {
	ledger := service.NewLedgerService(r.usage, r.enrollments, r.clients, r.vouchers, loc, nopLogger{})
	opts := service.DefaultSettlementOptions()
	opts.Location = loc
	opts.RetryBase = time.Millisecond
	opts.MaxQuotaRetries = 20
	return service.NewSettlementService(r.master(), r.sessions, r.usage, ledger, locker, r.tx, opts, nopLogger{})
}

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestTeacherRepository(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()

	missing, err := r.teachers.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	teacher := &entity.Teacher{ID: "t1", Name: "Kim", CommissionRate: 45.5, Active: true, CreatedAt: time.Now()}
	require.NoError(t, r.teachers.Save(ctx, teacher))

	teacher.Name = "Kim Minji"
	teacher.Active = false
	require.NoError(t, r.teachers.Save(ctx, teacher))

	got, err := r.teachers.GetByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Kim Minji", got.Name)
	assert.Equal(t, 45.5, got.CommissionRate)
	assert.False(t, got.Active)

	list, err := r.teachers.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClientRepository(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()
	r.seed(t)

	registered := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	ended := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.clients.Save(ctx, &entity.Client{
		ID:               "c2",
		Name:             "Park",
		RegistrationDate: &registered,
		EndDate:          &ended,
		CreatedAt:        time.Now(),
	}))

	got, err := r.clients.GetByID(ctx, "c2")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.RegistrationDate)
	require.NotNil(t, got.EndDate)
	assert.True(t, registered.Equal(*got.RegistrationDate))
	assert.True(t, ended.Equal(*got.EndDate))

	plain, err := r.clients.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, plain.EndDate)

	require.NoError(t, r.clients.AssignTeacher(ctx, "t1", "c1"))
	require.NoError(t, r.clients.AssignTeacher(ctx, "t1", "c1"), "assigning twice is a no-op")
	assignments, err := r.clients.ListAssignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []entity.TeacherAssignment{{TeacherID: "t1", ClientID: "c1"}}, assignments)

	assert.Error(t, r.clients.AssignTeacher(ctx, "ghost", "c1"), "foreign key must reject unknown teacher")

	list, err := r.clients.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestVoucherRepository(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()

	ref := int64(50000)
	require.NoError(t, r.vouchers.Save(ctx, &entity.Voucher{
		ID:                     "v1",
		Name:                   "Education",
		Category:               entity.VoucherCategoryEducationOffice,
		MonthlySupportAmount:   200000,
		PerSessionReferenceFee: &ref,
		CreatedAt:              time.Now(),
	}))

	got, err := r.vouchers.GetByID(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(200000), got.MonthlySupportAmount)
	require.NotNil(t, got.PerSessionReferenceFee)
	assert.Equal(t, ref, *got.PerSessionReferenceFee)

	err = r.vouchers.Save(ctx, &entity.Voucher{ID: "bad", Name: "Bad", Category: "other", CreatedAt: time.Now()})
	assert.Error(t, err, "schema rejects unknown categories")

	missing, err := r.vouchers.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEnrollmentRepository_ReplaceForClient(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()
	r.seed(t)

	got, err := r.enrollments.Get(ctx, "c1", "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.MonthlySessionCount)
	assert.Equal(t, int64(20000), got.MonthlyPersonalBurden)

	require.NoError(t, r.enrollments.ReplaceForClient(ctx, "c1", []*entity.ClientVoucherEnrollment{
		{ClientID: "c1", VoucherID: "v2", MonthlySessionCount: 2, MonthlyPersonalBurden: 0},
	}))

	got, err = r.enrollments.Get(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.Nil(t, got, "replace removes enrollments not in the new set")

	list, err := r.enrollments.ListByClient(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v2", list[0].VoucherID)

	// a failing insert leaves the previous set untouched
	err = r.enrollments.ReplaceForClient(ctx, "c1", []*entity.ClientVoucherEnrollment{
		{ClientID: "c1", VoucherID: "v1", MonthlySessionCount: 4},
		{ClientID: "c1", VoucherID: "ghost", MonthlySessionCount: 4},
	})
	require.Error(t, err)
	list, err = r.enrollments.ListByClient(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "v2", list[0].VoucherID)

	require.NoError(t, r.enrollments.ReplaceForClient(ctx, "c1", nil))
	all, err := r.enrollments.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCenterScheduleRepository(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()

	got, err := r.schedules.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.schedules.Save(ctx, &entity.CenterFeeSchedule{BaseFee: 55000, ExtraFeePerTenMinutes: 10000}))
	require.NoError(t, r.schedules.Save(ctx, &entity.CenterFeeSchedule{BaseFee: 60000, ExtraFeePerTenMinutes: 12000}))

	got, err = r.schedules.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(60000), got.BaseFee)
	assert.Equal(t, int64(12000), got.ExtraFeePerTenMinutes)

	var rows int
	require.NoError(t, r.db.QueryRow("SELECT COUNT(*) FROM center_settings").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSessionAndUsageRepositories(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()
	r.seed(t)

	sessions := []*entity.Session{
		{ID: "s1", Date: day(2026, 2, 28, 23), TeacherID: "t1", ClientID: "c1", DurationMinutes: 40, TotalFee: 50000, TotalSupport: 45000, FinalClientCost: 5000},
		{ID: "s2", Date: day(2026, 3, 1, 0), TeacherID: "t1", ClientID: "c1", DurationMinutes: 50, TotalFee: 60000, TotalSupport: 45000, FinalClientCost: 15000},
		{ID: "s3", Date: day(2026, 3, 31, 23), TeacherID: "t1", ClientID: "c1", DurationMinutes: 40, TotalFee: 50000, TotalSupport: 0, FinalClientCost: 50000},
		{ID: "s4", Date: day(2026, 4, 1, 0), TeacherID: "t1", ClientID: "c1", DurationMinutes: 40, TotalFee: 50000, TotalSupport: 45000, FinalClientCost: 5000},
	}
	for _, s := range sessions {
		s.CreatedAt = time.Now()
		require.NoError(t, r.sessions.Create(ctx, s))
	}
	usage := []*entity.SessionVoucherUsage{
		{SessionID: "s1", VoucherID: "v1", UsedAmount: 50000},
		{SessionID: "s2", VoucherID: "v1", UsedAmount: 50000},
		{SessionID: "s2", VoucherID: "v2", UsedAmount: 10000},
		{SessionID: "s3", VoucherID: "v1", UsedAmount: 0},
		{SessionID: "s4", VoucherID: "v1", UsedAmount: 50000},
	}
	for _, u := range usage {
		require.NoError(t, r.usage.Record(ctx, u))
	}

	march, april := day(2026, 3, 1, 0), day(2026, 4, 1, 0)

	total, err := r.usage.SumUsage(ctx, "c1", "v1", march, april)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), total, "window is half-open on both month edges")

	count, err := r.usage.CountSessionsUsingVoucher(ctx, "c1", "v1", march, april)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "zero-amount usage still counts as a session")

	none, err := r.usage.SumUsage(ctx, "c2", "v1", march, april)
	require.NoError(t, err)
	assert.Zero(t, none)

	details, err := r.sessions.ListDetailed(ctx, march, april)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "s3", details[0].ID, "newest first")
	assert.Equal(t, "s2", details[1].ID)
	assert.Equal(t, "Kim", details[1].TeacherName)
	assert.Equal(t, "Lee", details[1].ClientName)
	assert.Equal(t, 50.0, details[1].CommissionRate)
	assert.Equal(t, []entity.VoucherUsageDetail{
		{VoucherID: "v1", VoucherName: "Education", UsedAmount: 50000},
		{VoucherID: "v2", VoucherName: "Government", UsedAmount: 10000},
	}, details[1].Vouchers)
	assert.True(t, details[1].Date.Equal(day(2026, 3, 1, 0)))

	err = r.usage.Record(ctx, &entity.SessionVoucherUsage{SessionID: "ghost", VoucherID: "v1", UsedAmount: 1})
	assert.Error(t, err, "usage must reference an existing session")

	deleted, err := r.sessions.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	total, err = r.usage.SumUsage(ctx, "c1", "v1", day(2026, 1, 1, 0), day(2027, 1, 1, 0))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTransactionRollbackAcrossRepositories(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()
	r.seed(t)

	boom := errors.New("boom")
	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		session := &entity.Session{ID: "s1", Date: day(2026, 3, 2, 10), TeacherID: "t1", ClientID: "c1", DurationMinutes: 40, TotalFee: 50000, CreatedAt: time.Now()}
		if err := r.sessions.Create(txCtx, session); err != nil {
			return err
		}
		if err := r.usage.Record(txCtx, &entity.SessionVoucherUsage{SessionID: "s1", VoucherID: "v1", UsedAmount: 50000}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	details, err := r.sessions.ListDetailed(ctx, day(2026, 3, 1, 0), day(2026, 4, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestSettlementService_SQLite(t *testing.T) {
	r := newRepos(t, 1)
	ctx := context.Background()
	r.seed(t)
	svc := r.settlementService(lock.NewKeyedMutex())

	req := settlement.Request{Date: day(2026, 3, 10, 10), TeacherID: "t1", ClientID: "c1", DurationMinutes: 50, VoucherIDs: []string{"v1"}}

	quote, err := svc.Quote(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"v1": 0}, quote.Snapshot)

	result, err := svc.Submit(ctx, service.SubmitRequest{Request: req, ExpectedUsage: quote.Snapshot})
	require.NoError(t, err)
	assert.Equal(t, int64(60000), result.Session.TotalFee)
	assert.Equal(t, int64(45000), result.Session.TotalSupport)
	assert.Equal(t, int64(15000), result.Session.FinalClientCost)

	// the quoted snapshot is now stale
	_, err = svc.Submit(ctx, service.SubmitRequest{Request: req, ExpectedUsage: quote.Snapshot})
	require.ErrorIs(t, err, settlement.ErrQuotaRace)

	used, err := r.usage.SumUsage(ctx, "c1", "v1", day(2026, 3, 1, 0), day(2026, 4, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), used)

	_, err = svc.Submit(ctx, service.SubmitRequest{Request: settlement.Request{
		Date: req.Date, TeacherID: "t1", ClientID: "ghost", DurationMinutes: 40,
	}})
	require.ErrorIs(t, err, settlement.ErrValidation)
}

func TestSettlementService_ConcurrentSubmitsRespectPool(t *testing.T) {
	tests := []struct {
		name         string
		maxOpenConns int
		locker       port.QuotaLocker
	}{
		{"keyed mutex", 4, lock.NewKeyedMutex()},
		{"database serialization only", 4, noopLocker{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepos(t, tt.maxOpenConns)
			r.seed(t)
			svc := r.settlementService(tt.locker)

			const workers = 10
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := svc.SubmitWithRetry(context.Background(), service.SubmitRequest{Request: settlement.Request{
						Date:            day(2026, 3, 1+i, 10),
						TeacherID:       "t1",
						ClientID:        "c1",
						DurationMinutes: 40,
						VoucherIDs:      []string{"v1"},
					}})
					if err != nil {
						errs <- fmt.Errorf("worker %d: %w", i, err)
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				assert.NoError(t, err)
			}

			ctx := context.Background()
			used, err := r.usage.SumUsage(ctx, "c1", "v1", day(2026, 3, 1, 0), day(2026, 4, 1, 0))
			require.NoError(t, err)
			assert.Equal(t, int64(200000), used, "four sessions exhaust the pool, the rest are self-pay")

			count, err := r.usage.CountSessionsUsingVoucher(ctx, "c1", "v1", day(2026, 3, 1, 0), day(2026, 4, 1, 0))
			require.NoError(t, err)
			assert.Equal(t, workers, count)
		})
	}
}

func TestSettlement_ClientEndDateInServiceZone(t *testing.T) {
	r := newRepos(t, 1)
	r.seed(t)
	ctx := context.Background()

	seoul := time.FixedZone("KST", 9*60*60)
	end := time.Date(2024, 5, 31, 0, 0, 0, 0, seoul)
	require.NoError(t, r.clients.Save(ctx, &entity.Client{ID: "c1", Name: "Lee", EndDate: &end, CreatedAt: time.Now()}))

	svc := r.settlementServiceIn(lock.NewKeyedMutex(), seoul)
	quote := func(at time.Time) error {
		_, err := svc.Quote(ctx, settlement.Request{Date: at, TeacherID: "t1", ClientID: "c1", DurationMinutes: 40})
		return err
	}

	assert.NoError(t, quote(time.Date(2024, 5, 31, 8, 0, 0, 0, seoul)))
	assert.NoError(t, quote(time.Date(2024, 5, 31, 10, 0, 0, 0, seoul)))

	err := quote(time.Date(2024, 6, 1, 10, 0, 0, 0, seoul))
	require.ErrorIs(t, err, settlement.ErrValidation)
	assert.Contains(t, err.Error(), "client ended on 2024-05-31")
}
