package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// UsageRepository implements port.UsageRepository over session_vouchers
type UsageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *sql.DB, logger *zap.Logger) port.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// SumUsage totals the client's usage of a voucher for sessions dated in [start, end)
func (r *UsageRepository) SumUsage(ctx context.Context, clientID, voucherID string, start, end time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(sv.used_amount), 0)
		FROM session_vouchers sv
		JOIN sessions s ON s.id = sv.session_id
		WHERE s.client_id = ? AND sv.voucher_id = ? AND s.date >= ? AND s.date < ?
	`

	var total int64
	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, clientID, voucherID, utc(start), utc(end)).Scan(&total)
	if err != nil {
		r.logger.Error("Failed to sum usage",
			zap.String("client_id", clientID),
			zap.String("voucher_id", voucherID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}

// CountSessionsUsingVoucher counts the client's sessions in [start, end) with a usage row for the voucher
func (r *UsageRepository) CountSessionsUsingVoucher(ctx context.Context, clientID, voucherID string, start, end time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT s.id)
		FROM session_vouchers sv
		JOIN sessions s ON s.id = sv.session_id
		WHERE s.client_id = ? AND sv.voucher_id = ? AND s.date >= ? AND s.date < ?
	`

	var count int
	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, clientID, voucherID, utc(start), utc(end)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Record inserts one usage row
func (r *UsageRepository) Record(ctx context.Context, usage *entity.SessionVoucherUsage) error {
	query := `INSERT INTO session_vouchers (session_id, voucher_id, used_amount) VALUES (?, ?, ?)`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query, usage.SessionID, usage.VoucherID, usage.UsedAmount)
	if err != nil {
		r.logger.Error("Failed to record usage",
			zap.String("session_id", usage.SessionID),
			zap.String("voucher_id", usage.VoucherID),
			zap.Error(err))
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// LockQuota is a no-op: the connection opens write transactions with
// BEGIN IMMEDIATE, which already serializes every writer.
func (r *UsageRepository) LockQuota(ctx context.Context, key string) error {
	return nil
}

// Verify interface compliance
var _ port.UsageRepository = (*UsageRepository)(nil)
