package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// VoucherRepository implements port.VoucherRepository
type VoucherRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(db *sql.DB, logger *zap.Logger) port.VoucherRepository {
	return &VoucherRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates a voucher
func (r *VoucherRepository) Save(ctx context.Context, voucher *entity.Voucher) error {
	query := `
		INSERT INTO vouchers (id, name, category, monthly_support_amount, per_session_reference_fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			monthly_support_amount = excluded.monthly_support_amount,
			per_session_reference_fee = excluded.per_session_reference_fee
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		voucher.ID,
		voucher.Name,
		voucher.Category,
		voucher.MonthlySupportAmount,
		nullableInt64(voucher.PerSessionReferenceFee),
		utc(voucher.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save voucher", zap.String("id", voucher.ID), zap.Error(err))
		return fmt.Errorf("failed to save voucher: %w", err)
	}
	return nil
}

// GetByID retrieves a voucher by ID
func (r *VoucherRepository) GetByID(ctx context.Context, id string) (*entity.Voucher, error) {
	query := `
		SELECT id, name, category, monthly_support_amount, per_session_reference_fee, created_at
		FROM vouchers
		WHERE id = ?
	`

	voucher, err := scanVoucher(executorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get voucher", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return voucher, nil
}

// List returns every voucher ordered by name
func (r *VoucherRepository) List(ctx context.Context) ([]*entity.Voucher, error) {
	query := `
		SELECT id, name, category, monthly_support_amount, per_session_reference_fee, created_at
		FROM vouchers
		ORDER BY name, id
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*entity.Voucher
	for rows.Next() {
		voucher, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, voucher)
	}
	return vouchers, rows.Err()
}

func scanVoucher(row rowScanner) (*entity.Voucher, error) {
	var voucher entity.Voucher
	var refFee sql.NullInt64
	if err := row.Scan(
		&voucher.ID,
		&voucher.Name,
		&voucher.Category,
		&voucher.MonthlySupportAmount,
		&refFee,
		&voucher.CreatedAt,
	); err != nil {
		return nil, err
	}
	voucher.PerSessionReferenceFee = int64Ptr(refFee)
	return &voucher, nil
}

// Verify interface compliance
var _ port.VoucherRepository = (*VoucherRepository)(nil)
