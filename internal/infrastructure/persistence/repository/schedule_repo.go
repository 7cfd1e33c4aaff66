package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// CenterScheduleRepository implements port.CenterScheduleRepository.
// The schedule is a single row with id 1.
type CenterScheduleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCenterScheduleRepository creates a new center schedule repository
func NewCenterScheduleRepository(db *sql.DB, logger *zap.Logger) port.CenterScheduleRepository {
	return &CenterScheduleRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the saved schedule, or nil when none exists
func (r *CenterScheduleRepository) Get(ctx context.Context) (*entity.CenterFeeSchedule, error) {
	query := `SELECT base_fee, extra_fee_per_10min, updated_at FROM center_settings WHERE id = 1`

	var schedule entity.CenterFeeSchedule
	err := executorFor(ctx, r.db).QueryRowContext(ctx, query).Scan(
		&schedule.BaseFee,
		&schedule.ExtraFeePerTenMinutes,
		&schedule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get center schedule", zap.Error(err))
		return nil, fmt.Errorf("failed to get center schedule: %w", err)
	}
	return &schedule, nil
}

// Save stores the schedule
func (r *CenterScheduleRepository) Save(ctx context.Context, schedule *entity.CenterFeeSchedule) error {
	query := `
		INSERT INTO center_settings (id, base_fee, extra_fee_per_10min, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_fee = excluded.base_fee,
			extra_fee_per_10min = excluded.extra_fee_per_10min,
			updated_at = excluded.updated_at
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		schedule.BaseFee,
		schedule.ExtraFeePerTenMinutes,
		utc(schedule.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save center schedule", zap.Error(err))
		return fmt.Errorf("failed to save center schedule: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.CenterScheduleRepository = (*CenterScheduleRepository)(nil)
