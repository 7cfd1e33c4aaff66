package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/garyjia/counsel-settlement/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// EnrollmentRepository implements port.EnrollmentRepository
type EnrollmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(db *sql.DB, logger *zap.Logger) port.EnrollmentRepository {
	return &EnrollmentRepository{
		db:     db,
		logger: logger,
	}
}

const enrollmentColumns = `client_id, voucher_id, monthly_session_count, monthly_personal_burden`

// Get retrieves one enrollment, or nil when the client is not enrolled
func (r *EnrollmentRepository) Get(ctx context.Context, clientID, voucherID string) (*entity.ClientVoucherEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM client_vouchers WHERE client_id = ? AND voucher_id = ?`

	var e entity.ClientVoucherEnrollment
	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, clientID, voucherID).Scan(
		&e.ClientID,
		&e.VoucherID,
		&e.MonthlySessionCount,
		&e.MonthlyPersonalBurden,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get enrollment",
			zap.String("client_id", clientID),
			zap.String("voucher_id", voucherID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &e, nil
}

// ListByClient returns the client's enrollments
func (r *EnrollmentRepository) ListByClient(ctx context.Context, clientID string) ([]*entity.ClientVoucherEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM client_vouchers WHERE client_id = ? ORDER BY voucher_id`
	return r.query(ctx, query, clientID)
}

// List returns every enrollment
func (r *EnrollmentRepository) List(ctx context.Context) ([]*entity.ClientVoucherEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM client_vouchers ORDER BY client_id, voucher_id`
	return r.query(ctx, query)
}

func (r *EnrollmentRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ClientVoucherEnrollment, error) {
	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*entity.ClientVoucherEnrollment
	for rows.Next() {
		var e entity.ClientVoucherEnrollment
		if err := rows.Scan(&e.ClientID, &e.VoucherID, &e.MonthlySessionCount, &e.MonthlyPersonalBurden); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, &e)
	}
	return enrollments, rows.Err()
}

// ReplaceForClient deletes and reinserts the client's enrollments in one transaction
func (r *EnrollmentRepository) ReplaceForClient(ctx context.Context, clientID string, enrollments []*entity.ClientVoucherEnrollment) error {
	return sqlite.NewDB(r.db, r.logger).WithTransaction(ctx, func(txCtx context.Context) error {
		exec := executorFor(txCtx, r.db)

		if _, err := exec.ExecContext(txCtx, `DELETE FROM client_vouchers WHERE client_id = ?`, clientID); err != nil {
			r.logger.Error("Failed to delete enrollments", zap.String("client_id", clientID), zap.Error(err))
			return fmt.Errorf("failed to delete enrollments: %w", err)
		}

		query := `INSERT INTO client_vouchers (` + enrollmentColumns + `) VALUES (?, ?, ?, ?)`
		for _, e := range enrollments {
			if _, err := exec.ExecContext(txCtx, query,
				clientID,
				e.VoucherID,
				e.MonthlySessionCount,
				e.MonthlyPersonalBurden,
			); err != nil {
				r.logger.Error("Failed to insert enrollment",
					zap.String("client_id", clientID),
					zap.String("voucher_id", e.VoucherID),
					zap.Error(err))
				return fmt.Errorf("failed to insert enrollment: %w", err)
			}
		}
		return nil
	})
}

// Verify interface compliance
var _ port.EnrollmentRepository = (*EnrollmentRepository)(nil)
