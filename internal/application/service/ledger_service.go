package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/period"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
)

// AllotmentFilter narrows the monthly allotment dashboard
type AllotmentFilter struct {
	Query            string // client name, case-insensitive substring
	TeacherID        string // only clients assigned to this teacher
	OnlyWithRollover bool   // only clients with at least one unused session
}

// VoucherAllotment is one enrolled voucher's consumption for a month
type VoucherAllotment struct {
	VoucherID            string `json:"voucher_id"`
	VoucherName          string `json:"voucher_name"`
	Category             string `json:"category"`
	MonthlySessionCount  int    `json:"monthly_session_count"`
	SessionsUsed         int    `json:"sessions_used"`
	SessionsRemaining    int    `json:"sessions_remaining"`
	RolloverToNext       int    `json:"rollover_to_next"` // informational only, never credited
	MonthlySupportAmount int64  `json:"monthly_support_amount"`
	AmountUsed           int64  `json:"amount_used"`
	AmountRemaining      int64  `json:"amount_remaining"`
}

// ClientAllotment groups a client's voucher allotments
type ClientAllotment struct {
	ClientID   string             `json:"client_id"`
	ClientName string             `json:"client_name"`
	TeacherIDs []string           `json:"teacher_ids"`
	Vouchers   []VoucherAllotment `json:"vouchers"`
}

// HasRollover reports whether any voucher has unused sessions
func (a ClientAllotment) HasRollover() bool {
	for _, v := range a.Vouchers {
		if v.RolloverToNext > 0 {
			return true
		}
	}
	return false
}

// LedgerService answers how much of each voucher pool a client has consumed
type LedgerService interface {
	UsedThisMonth(ctx context.Context, clientID, voucherID string, at time.Time) (int64, error)
	Snapshot(ctx context.Context, clientID string, voucherIDs []string, at time.Time) (map[string]int64, error)
	RecordUsage(ctx context.Context, sessionID, voucherID string, amount int64) error
	SessionsRemaining(ctx context.Context, clientID, voucherID string, at time.Time) (int, error)
	MonthlyAllotments(ctx context.Context, month time.Time, filter AllotmentFilter) ([]ClientAllotment, error)
}

type ledgerServiceImpl struct {
	usageRepo      port.UsageRepository
	enrollmentRepo port.EnrollmentRepository
	clientRepo     port.ClientRepository
	voucherRepo    port.VoucherRepository
	location       *time.Location
	logger         Logger
}

// NewLedgerService creates a new LedgerService. Month windows are computed in location.
func NewLedgerService(
	usageRepo port.UsageRepository,
	enrollmentRepo port.EnrollmentRepository,
	clientRepo port.ClientRepository,
	voucherRepo port.VoucherRepository,
	location *time.Location,
	logger Logger,
) LedgerService {
	if location == nil {
		location = time.Local
	}
	return &ledgerServiceImpl{
		usageRepo:      usageRepo,
		enrollmentRepo: enrollmentRepo,
		clientRepo:     clientRepo,
		voucherRepo:    voucherRepo,
		location:       location,
		logger:         logger,
	}
}

func (s *ledgerServiceImpl) monthOf(at time.Time) period.Window {
	return period.MonthOf(at.In(s.location))
}

// UsedThisMonth sums the client's usage of a voucher in the calendar month containing at
func (s *ledgerServiceImpl) UsedThisMonth(ctx context.Context, clientID, voucherID string, at time.Time) (int64, error) {
	w := s.monthOf(at)
	used, err := s.usageRepo.SumUsage(ctx, clientID, voucherID, w.Start, w.End)
	if err != nil {
		return 0, settlement.WrapPersistence("sum usage", err)
	}
	return used, nil
}

// Snapshot reads UsedThisMonth for each voucher
func (s *ledgerServiceImpl) Snapshot(ctx context.Context, clientID string, voucherIDs []string, at time.Time) (map[string]int64, error) {
	snapshot := make(map[string]int64, len(voucherIDs))
	for _, voucherID := range voucherIDs {
		used, err := s.UsedThisMonth(ctx, clientID, voucherID, at)
		if err != nil {
			return nil, err
		}
		snapshot[voucherID] = used
	}
	return snapshot, nil
}

// RecordUsage writes one usage row. It joins the transaction carried by ctx.
func (s *ledgerServiceImpl) RecordUsage(ctx context.Context, sessionID, voucherID string, amount int64) error {
	if amount < 0 {
		return settlement.NewValidationError("used_amount", "must not be negative")
	}
	err := s.usageRepo.Record(ctx, &entity.SessionVoucherUsage{
		SessionID:  sessionID,
		VoucherID:  voucherID,
		UsedAmount: amount,
	})
	if err != nil {
		return settlement.WrapPersistence("record usage", err)
	}
	return nil
}

// SessionsRemaining is the client's unused session count for the month. Display only.
func (s *ledgerServiceImpl) SessionsRemaining(ctx context.Context, clientID, voucherID string, at time.Time) (int, error) {
	enrollment, err := s.enrollmentRepo.Get(ctx, clientID, voucherID)
	if err != nil {
		return 0, settlement.WrapPersistence("get enrollment", err)
	}
	w := s.monthOf(at)
	used, err := s.usageRepo.CountSessionsUsingVoucher(ctx, clientID, voucherID, w.Start, w.End)
	if err != nil {
		return 0, settlement.WrapPersistence("count sessions", err)
	}
	return remainingSessions(sessionCount(enrollment), used), nil
}

// MonthlyAllotments builds the per-client voucher dashboard for the month containing month
func (s *ledgerServiceImpl) MonthlyAllotments(ctx context.Context, month time.Time, filter AllotmentFilter) ([]ClientAllotment, error) {
	w := s.monthOf(month)

	clients, err := s.clientRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	enrollments, err := s.enrollmentRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	vouchers, err := s.voucherRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	assignments, err := s.clientRepo.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	voucherByID := make(map[string]*entity.Voucher, len(vouchers))
	for _, v := range vouchers {
		voucherByID[v.ID] = v
	}
	enrollmentsByClient := make(map[string][]*entity.ClientVoucherEnrollment)
	for _, e := range enrollments {
		enrollmentsByClient[e.ClientID] = append(enrollmentsByClient[e.ClientID], e)
	}
	teachersByClient := make(map[string][]string)
	for _, a := range assignments {
		teachersByClient[a.ClientID] = append(teachersByClient[a.ClientID], a.TeacherID)
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	result := []ClientAllotment{}

	for _, client := range clients {
		cvs := enrollmentsByClient[client.ID]
		if len(cvs) == 0 {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(client.Name), query) {
			continue
		}
		teacherIDs := teachersByClient[client.ID]
		if filter.TeacherID != "" && !containsString(teacherIDs, filter.TeacherID) {
			continue
		}

		allotment := ClientAllotment{
			ClientID:   client.ID,
			ClientName: client.Name,
			TeacherIDs: teacherIDs,
		}
		for _, cv := range cvs {
			va, err := s.voucherAllotment(ctx, cv, voucherByID[cv.VoucherID], w)
			if err != nil {
				return nil, err
			}
			allotment.Vouchers = append(allotment.Vouchers, va)
		}
		sort.Slice(allotment.Vouchers, func(i, j int) bool {
			return allotment.Vouchers[i].VoucherName < allotment.Vouchers[j].VoucherName
		})

		if filter.OnlyWithRollover && !allotment.HasRollover() {
			continue
		}
		result = append(result, allotment)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ClientName != result[j].ClientName {
			return result[i].ClientName < result[j].ClientName
		}
		return result[i].ClientID < result[j].ClientID
	})

	s.logger.Info("Monthly allotments built", "month", w.Start.Format("2006-01"), "clients", len(result))
	return result, nil
}

func (s *ledgerServiceImpl) voucherAllotment(ctx context.Context, cv *entity.ClientVoucherEnrollment, voucher *entity.Voucher, w period.Window) (VoucherAllotment, error) {
	used, err := s.usageRepo.CountSessionsUsingVoucher(ctx, cv.ClientID, cv.VoucherID, w.Start, w.End)
	if err != nil {
		return VoucherAllotment{}, settlement.WrapPersistence("count sessions", err)
	}
	amount, err := s.usageRepo.SumUsage(ctx, cv.ClientID, cv.VoucherID, w.Start, w.End)
	if err != nil {
		return VoucherAllotment{}, settlement.WrapPersistence("sum usage", err)
	}

	count := sessionCount(cv)
	remaining := remainingSessions(count, used)
	va := VoucherAllotment{
		VoucherID:           cv.VoucherID,
		VoucherName:         "unknown",
		MonthlySessionCount: count,
		SessionsUsed:        used,
		SessionsRemaining:   remaining,
		RolloverToNext:      remaining,
		AmountUsed:          amount,
	}
	if voucher != nil {
		va.VoucherName = voucher.Name
		va.Category = voucher.Category
		va.MonthlySupportAmount = voucher.MonthlySupportAmount
		va.AmountRemaining = max(0, voucher.MonthlySupportAmount-amount)
	}
	return va, nil
}

func sessionCount(enrollment *entity.ClientVoucherEnrollment) int {
	if enrollment == nil || enrollment.MonthlySessionCount <= 0 {
		return entity.DefaultMonthlySessionCount
	}
	return enrollment.MonthlySessionCount
}

func remainingSessions(count, used int) int {
	return max(0, count-used)
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
