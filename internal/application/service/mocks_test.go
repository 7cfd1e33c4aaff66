package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/counsel-settlement/internal/domain/entity"
)

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockTeacherRepo struct {
	teachers    map[string]*entity.Teacher
	getByIDFunc func(ctx context.Context, id string) (*entity.Teacher, error)
	saveFunc    func(ctx context.Context, teacher *entity.Teacher) error
}

func (m *mockTeacherRepo) Save(ctx context.Context, teacher *entity.Teacher) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, teacher)
	}
	if m.teachers == nil {
		m.teachers = map[string]*entity.Teacher{}
	}
	m.teachers[teacher.ID] = teacher
	return nil
}

func (m *mockTeacherRepo) GetByID(ctx context.Context, id string) (*entity.Teacher, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return m.teachers[id], nil
}

func (m *mockTeacherRepo) List(ctx context.Context) ([]*entity.Teacher, error) {
	var out []*entity.Teacher
	for _, t := range m.teachers {
		out = append(out, t)
	}
	return out, nil
}

type mockClientRepo struct {
	clients     map[string]*entity.Client
	assignments []entity.TeacherAssignment
	getByIDFunc func(ctx context.Context, id string) (*entity.Client, error)
}

func (m *mockClientRepo) Save(ctx context.Context, client *entity.Client) error {
	if m.clients == nil {
		m.clients = map[string]*entity.Client{}
	}
	m.clients[client.ID] = client
	return nil
}

func (m *mockClientRepo) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return m.clients[id], nil
}

func (m *mockClientRepo) List(ctx context.Context) ([]*entity.Client, error) {
	var out []*entity.Client
	for _, c := range m.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockClientRepo) AssignTeacher(ctx context.Context, teacherID, clientID string) error {
	m.assignments = append(m.assignments, entity.TeacherAssignment{TeacherID: teacherID, ClientID: clientID})
	return nil
}

func (m *mockClientRepo) ListAssignments(ctx context.Context) ([]entity.TeacherAssignment, error) {
	return m.assignments, nil
}

type mockVoucherRepo struct {
	vouchers map[string]*entity.Voucher
}

func (m *mockVoucherRepo) Save(ctx context.Context, voucher *entity.Voucher) error {
	if m.vouchers == nil {
		m.vouchers = map[string]*entity.Voucher{}
	}
	m.vouchers[voucher.ID] = voucher
	return nil
}

func (m *mockVoucherRepo) GetByID(ctx context.Context, id string) (*entity.Voucher, error) {
	return m.vouchers[id], nil
}

func (m *mockVoucherRepo) List(ctx context.Context) ([]*entity.Voucher, error) {
	var out []*entity.Voucher
	for _, v := range m.vouchers {
		out = append(out, v)
	}
	return out, nil
}

type mockEnrollmentRepo struct {
	enrollments          []*entity.ClientVoucherEnrollment
	replaceForClientFunc func(ctx context.Context, clientID string, enrollments []*entity.ClientVoucherEnrollment) error
}

func (m *mockEnrollmentRepo) Get(ctx context.Context, clientID, voucherID string) (*entity.ClientVoucherEnrollment, error) {
	for _, e := range m.enrollments {
		if e.ClientID == clientID && e.VoucherID == voucherID {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockEnrollmentRepo) ListByClient(ctx context.Context, clientID string) ([]*entity.ClientVoucherEnrollment, error) {
	var out []*entity.ClientVoucherEnrollment
	for _, e := range m.enrollments {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context) ([]*entity.ClientVoucherEnrollment, error) {
	return m.enrollments, nil
}

func (m *mockEnrollmentRepo) ReplaceForClient(ctx context.Context, clientID string, enrollments []*entity.ClientVoucherEnrollment) error {
	if m.replaceForClientFunc != nil {
		return m.replaceForClientFunc(ctx, clientID, enrollments)
	}
	kept := m.enrollments[:0]
	for _, e := range m.enrollments {
		if e.ClientID != clientID {
			kept = append(kept, e)
		}
	}
	m.enrollments = append(kept, enrollments...)
	return nil
}

type mockScheduleRepo struct {
	schedule *entity.CenterFeeSchedule
	getFunc  func(ctx context.Context) (*entity.CenterFeeSchedule, error)
}

func (m *mockScheduleRepo) Get(ctx context.Context) (*entity.CenterFeeSchedule, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx)
	}
	return m.schedule, nil
}

func (m *mockScheduleRepo) Save(ctx context.Context, schedule *entity.CenterFeeSchedule) error {
	m.schedule = schedule
	return nil
}

// memLedger backs both the session and usage mocks so sums see committed rows
type memLedger struct {
	mu       sync.Mutex
	sessions []*entity.Session
	usage    []entity.SessionVoucherUsage
}

func (l *memLedger) sessionByID(id string) *entity.Session {
	for _, s := range l.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

type mockSessionRepo struct {
	ledger           *memLedger
	createFunc       func(ctx context.Context, session *entity.Session) error
	listDetailedFunc func(ctx context.Context, start, end time.Time) ([]entity.SessionDetail, error)
	deleteAllFunc    func(ctx context.Context) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *entity.Session) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, session)
	}
	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	m.ledger.sessions = append(m.ledger.sessions, session)
	return nil
}

func (m *mockSessionRepo) ListDetailed(ctx context.Context, start, end time.Time) ([]entity.SessionDetail, error) {
	if m.listDetailedFunc != nil {
		return m.listDetailedFunc(ctx, start, end)
	}
	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	var out []entity.SessionDetail
	for _, s := range m.ledger.sessions {
		if !s.Date.Before(start) && s.Date.Before(end) {
			out = append(out, entity.SessionDetail{Session: *s})
		}
	}
	return out, nil
}

func (m *mockSessionRepo) DeleteAll(ctx context.Context) (int64, error) {
	if m.deleteAllFunc != nil {
		return m.deleteAllFunc(ctx)
	}
	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	n := int64(len(m.ledger.sessions))
	m.ledger.sessions = nil
	m.ledger.usage = nil
	return n, nil
}

type mockUsageRepo struct {
	ledger       *memLedger
	sumUsageFunc func(ctx context.Context, clientID, voucherID string, start, end time.Time) (int64, error)
	recordFunc   func(ctx context.Context, usage *entity.SessionVoucherUsage) error
	lockedKeys   []string
}

func (m *mockUsageRepo) SumUsage(ctx context.Context, clientID, voucherID string, start, end time.Time) (int64, error) {
	if m.sumUsageFunc != nil {
		return m.sumUsageFunc(ctx, clientID, voucherID, start, end)
	}
	return m.storedSum(clientID, voucherID, start, end), nil
}

func (m *mockUsageRepo) storedSum(clientID, voucherID string, start, end time.Time) int64 {
	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	var total int64
	for _, u := range m.ledger.usage {
		s := m.ledger.sessionByID(u.SessionID)
		if s == nil || s.ClientID != clientID || u.VoucherID != voucherID {
			continue
		}
		if !s.Date.Before(start) && s.Date.Before(end) {
			total += u.UsedAmount
		}
	}
	return total
}

func (m *mockUsageRepo) CountSessionsUsingVoucher(ctx context.Context, clientID, voucherID string, start, end time.Time) (int, error) {
	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	count := 0
	for _, u := range m.ledger.usage {
		s := m.ledger.sessionByID(u.SessionID)
		if s == nil || s.ClientID != clientID || u.VoucherID != voucherID {
			continue
		}
		if !s.Date.Before(start) && s.Date.Before(end) {
			count++
		}
	}
	return count, nil
}

func (m *mockUsageRepo) Record(ctx context.Context, usage *entity.SessionVoucherUsage) error {
	if m.recordFunc != nil {
		return m.recordFunc(ctx, usage)
	}
	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	m.ledger.usage = append(m.ledger.usage, *usage)
	return nil
}

func (m *mockUsageRepo) LockQuota(ctx context.Context, key string) error {
	m.lockedKeys = append(m.lockedKeys, key)
	return nil
}

type mockLocker struct {
	keys     []string
	unlocked int
	lockFunc func(ctx context.Context, keys ...string) (func(), error)
}

func (m *mockLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	if m.lockFunc != nil {
		return m.lockFunc(ctx, keys...)
	}
	m.keys = append(m.keys, keys...)
	return func() { m.unlocked++ }, nil
}

// fixture wires every mock around one shared in-memory ledger
type fixture struct {
	ledger      *memLedger
	teachers    *mockTeacherRepo
	clients     *mockClientRepo
	vouchers    *mockVoucherRepo
	enrollments *mockEnrollmentRepo
	schedules   *mockScheduleRepo
	sessions    *mockSessionRepo
	usage       *mockUsageRepo
	locker      *mockLocker
	txManager   *mockTxManager
}

func newFixture() *fixture {
	l := &memLedger{}
	return &fixture{
		ledger: l,
		teachers: &mockTeacherRepo{teachers: map[string]*entity.Teacher{
			"t1": {ID: "t1", Name: "Kim", CommissionRate: 50, Active: true},
		}},
		clients: &mockClientRepo{clients: map[string]*entity.Client{
			"c1": {ID: "c1", Name: "Lee"},
		}},
		vouchers: &mockVoucherRepo{vouchers: map[string]*entity.Voucher{
			"v1": {ID: "v1", Name: "Edu", Category: entity.VoucherCategoryEducationOffice, MonthlySupportAmount: 200000},
			"v2": {ID: "v2", Name: "Gov", Category: entity.VoucherCategoryGovernment, MonthlySupportAmount: 60000},
		}},
		enrollments: &mockEnrollmentRepo{enrollments: []*entity.ClientVoucherEnrollment{
			{ClientID: "c1", VoucherID: "v1", MonthlySessionCount: 4, MonthlyPersonalBurden: 20000},
		}},
		schedules: &mockScheduleRepo{},
		sessions:  &mockSessionRepo{ledger: l},
		usage:     &mockUsageRepo{ledger: l},
		locker:    &mockLocker{},
		txManager: &mockTxManager{},
	}
}

func (f *fixture) master() MasterData {
	return MasterData{
		Teachers:    f.teachers,
		Clients:     f.clients,
		Vouchers:    f.vouchers,
		Enrollments: f.enrollments,
		Schedules:   f.schedules,
	}
}

func (f *fixture) ledgerService() LedgerService {
	return NewLedgerService(f.usage, f.enrollments, f.clients, f.vouchers, time.UTC, &mockLogger{})
}

func (f *fixture) settlementService() SettlementService {
	opts := DefaultSettlementOptions()
	opts.Location = time.UTC
	opts.RetryBase = time.Millisecond
	return NewSettlementService(f.master(), f.sessions, f.usage, f.ledgerService(), f.locker, f.txManager, opts, &mockLogger{})
}

// seedSession commits a session with one usage row directly into the ledger
func (f *fixture) seedSession(id, clientID string, date time.Time, voucherID string, used int64) {
	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	f.ledger.sessions = append(f.ledger.sessions, &entity.Session{ID: id, ClientID: clientID, TeacherID: "t1", Date: date})
	if voucherID != "" {
		f.ledger.usage = append(f.ledger.usage, entity.SessionVoucherUsage{SessionID: id, VoucherID: voucherID, UsedAmount: used})
	}
}

// rollbackOnError makes the mock transaction discard ledger writes when fn fails
func (f *fixture) rollbackOnError() {
	f.txManager.withTransactionFunc = func(ctx context.Context, fn func(ctx context.Context) error) error {
		f.ledger.mu.Lock()
		sessions := append([]*entity.Session(nil), f.ledger.sessions...)
		usage := append([]entity.SessionVoucherUsage(nil), f.ledger.usage...)
		f.ledger.mu.Unlock()

		err := fn(ctx)
		if err != nil {
			f.ledger.mu.Lock()
			f.ledger.sessions = sessions
			f.ledger.usage = usage
			f.ledger.mu.Unlock()
		}
		return err
	}
}
