package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/domain/event"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
	"github.com/google/uuid"
)

// MasterDataService maintains the records settlements are computed from
type MasterDataService interface {
	SaveTeacher(ctx context.Context, teacher *entity.Teacher) error
	SaveClient(ctx context.Context, client *entity.Client) error
	SaveVoucher(ctx context.Context, voucher *entity.Voucher) error
	ReplaceEnrollments(ctx context.Context, clientID string, enrollments []*entity.ClientVoucherEnrollment) error
	GetCenterSchedule(ctx context.Context) (*entity.CenterFeeSchedule, error)
	SaveCenterSchedule(ctx context.Context, schedule *entity.CenterFeeSchedule) error
	AssignTeacher(ctx context.Context, teacherID, clientID string) error
}

type masterDataServiceImpl struct {
	master    MasterData
	txManager port.TransactionManager
	fallback  settlement.Tariff
	location  *time.Location
	events    port.EventPublisher
	logger    Logger
}

// NewMasterDataService creates a new MasterDataService. fallback is reported
// by GetCenterSchedule until a schedule is saved.
func NewMasterDataService(
	master MasterData,
	txManager port.TransactionManager,
	fallback settlement.Tariff,
	logger Logger,
	opts ...Option,
) MasterDataService {
	o := applyOptions(opts)
	return &masterDataServiceImpl{
		master:    master,
		txManager: txManager,
		fallback:  fallback,
		location:  o.location,
		events:    o.events,
		logger:    logger,
	}
}

// SaveTeacher creates or updates a teacher
func (s *masterDataServiceImpl) SaveTeacher(ctx context.Context, teacher *entity.Teacher) error {
	if strings.TrimSpace(teacher.Name) == "" {
		return settlement.NewValidationError("name", "is required")
	}
	if teacher.CommissionRate < 0 || teacher.CommissionRate > 100 {
		return settlement.NewValidationError("commission_rate", "must be between 0 and 100")
	}
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
		teacher.CreatedAt = time.Now()
	}
	if err := s.master.Teachers.Save(ctx, teacher); err != nil {
		s.logger.Error("Failed to save teacher", "error", err, "teacher_id", teacher.ID)
		return settlement.WrapPersistence("save teacher", err)
	}
	s.logger.Info("Teacher saved", "teacher_id", teacher.ID)
	return nil
}

// SaveClient creates or updates a client
func (s *masterDataServiceImpl) SaveClient(ctx context.Context, client *entity.Client) error {
	if strings.TrimSpace(client.Name) == "" {
		return settlement.NewValidationError("name", "is required")
	}
	if client.RegistrationDate != nil && client.EndDate != nil && client.EndDate.Before(*client.RegistrationDate) {
		return settlement.NewValidationError("end_date", "must not be before registration_date")
	}
	if client.ID == "" {
		client.ID = uuid.NewString()
		client.CreatedAt = time.Now()
	}
	if err := s.master.Clients.Save(ctx, client); err != nil {
		s.logger.Error("Failed to save client", "error", err, "client_id", client.ID)
		return settlement.WrapPersistence("save client", err)
	}
	s.logger.Info("Client saved", "client_id", client.ID)
	return nil
}

// SaveVoucher creates or updates a voucher
func (s *masterDataServiceImpl) SaveVoucher(ctx context.Context, voucher *entity.Voucher) error {
	if strings.TrimSpace(voucher.Name) == "" {
		return settlement.NewValidationError("name", "is required")
	}
	if !entity.IsValidVoucherCategory(voucher.Category) {
		return settlement.NewValidationError("category", fmt.Sprintf("unknown category %q", voucher.Category))
	}
	if voucher.MonthlySupportAmount < 0 {
		return settlement.NewValidationError("monthly_support_amount", "must not be negative")
	}
	if voucher.PerSessionReferenceFee != nil && *voucher.PerSessionReferenceFee < 0 {
		return settlement.NewValidationError("per_session_reference_fee", "must not be negative")
	}
	if voucher.ID == "" {
		voucher.ID = uuid.NewString()
		voucher.CreatedAt = time.Now()
	}
	if err := s.master.Vouchers.Save(ctx, voucher); err != nil {
		s.logger.Error("Failed to save voucher", "error", err, "voucher_id", voucher.ID)
		return settlement.WrapPersistence("save voucher", err)
	}
	s.logger.Info("Voucher saved", "voucher_id", voucher.ID)
	return nil
}

// ReplaceEnrollments swaps the client's whole enrollment set
func (s *masterDataServiceImpl) ReplaceEnrollments(ctx context.Context, clientID string, enrollments []*entity.ClientVoucherEnrollment) error {
	seen := make(map[string]bool, len(enrollments))
	for _, e := range enrollments {
		if e.VoucherID == "" {
			return settlement.NewValidationError("voucher_id", "is required")
		}
		if seen[e.VoucherID] {
			return settlement.NewValidationError("voucher_id", fmt.Sprintf("voucher %s listed twice", e.VoucherID))
		}
		seen[e.VoucherID] = true
		if e.MonthlySessionCount <= 0 {
			return settlement.NewValidationError("monthly_session_count", "must be positive")
		}
		if e.MonthlyPersonalBurden < 0 {
			return settlement.NewValidationError("monthly_personal_burden", "must not be negative")
		}
		e.ClientID = clientID
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		client, err := s.master.Clients.GetByID(txCtx, clientID)
		if err != nil {
			return fmt.Errorf("get client: %w", err)
		}
		if client == nil {
			return fmt.Errorf("client %s: %w", clientID, settlement.ErrNotFound)
		}
		for _, e := range enrollments {
			voucher, err := s.master.Vouchers.GetByID(txCtx, e.VoucherID)
			if err != nil {
				return fmt.Errorf("get voucher: %w", err)
			}
			if voucher == nil {
				return fmt.Errorf("voucher %s: %w", e.VoucherID, settlement.ErrNotFound)
			}
		}
		if err := s.master.Enrollments.ReplaceForClient(txCtx, clientID, enrollments); err != nil {
			return fmt.Errorf("replace enrollments: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to replace enrollments", "error", err, "client_id", clientID)
		return settlement.WrapPersistence("replace enrollments", err)
	}

	s.logger.Info("Enrollments replaced", "client_id", clientID, "count", len(enrollments))
	publish(ctx, s.events, event.NewEvent(event.TypeEnrollmentsReplaced, clientID, map[string]interface{}{
		"count": len(enrollments),
	}))
	return nil
}

// GetCenterSchedule returns the saved schedule, or the fallback tariff when none exists
func (s *masterDataServiceImpl) GetCenterSchedule(ctx context.Context) (*entity.CenterFeeSchedule, error) {
	schedule, err := s.master.Schedules.Get(ctx)
	if err != nil {
		return nil, settlement.WrapPersistence("get center schedule", err)
	}
	if schedule == nil {
		return &entity.CenterFeeSchedule{
			BaseFee:               s.fallback.BaseFee,
			ExtraFeePerTenMinutes: s.fallback.ExtraFeePerTenMinutes,
		}, nil
	}
	return schedule, nil
}

// SaveCenterSchedule stores the center fee schedule
func (s *masterDataServiceImpl) SaveCenterSchedule(ctx context.Context, schedule *entity.CenterFeeSchedule) error {
	if schedule.BaseFee < 0 {
		return settlement.NewValidationError("base_fee", "must not be negative")
	}
	if schedule.ExtraFeePerTenMinutes < 0 {
		return settlement.NewValidationError("extra_fee_per_10min", "must not be negative")
	}
	schedule.UpdatedAt = time.Now()
	if err := s.master.Schedules.Save(ctx, schedule); err != nil {
		s.logger.Error("Failed to save center schedule", "error", err)
		return settlement.WrapPersistence("save center schedule", err)
	}
	s.logger.Info("Center schedule saved", "base_fee", schedule.BaseFee, "extra_fee_per_10min", schedule.ExtraFeePerTenMinutes)
	publish(ctx, s.events, event.NewEvent(event.TypeCenterScheduleUpdated, "", map[string]interface{}{
		"base_fee":            schedule.BaseFee,
		"extra_fee_per_10min": schedule.ExtraFeePerTenMinutes,
	}))
	return nil
}

// AssignTeacher links a teacher to a client that has not ended
func (s *masterDataServiceImpl) AssignTeacher(ctx context.Context, teacherID, clientID string) error {
	teacher, err := s.master.Teachers.GetByID(ctx, teacherID)
	if err != nil {
		return settlement.WrapPersistence("get teacher", err)
	}
	if teacher == nil {
		return fmt.Errorf("teacher %s: %w", teacherID, settlement.ErrNotFound)
	}
	if !teacher.Active {
		return settlement.NewValidationError("teacher_id", "is not active")
	}
	client, err := s.master.Clients.GetByID(ctx, clientID)
	if err != nil {
		return settlement.WrapPersistence("get client", err)
	}
	if client == nil {
		return fmt.Errorf("client %s: %w", clientID, settlement.ErrNotFound)
	}
	if client.EndedBefore(time.Now(), s.location) {
		return settlement.NewValidationError("client_id", "client has ended")
	}

	if err := s.master.Clients.AssignTeacher(ctx, teacherID, clientID); err != nil {
		return settlement.WrapPersistence("assign teacher", err)
	}
	s.logger.Info("Teacher assigned", "teacher_id", teacherID, "client_id", clientID)
	return nil
}
