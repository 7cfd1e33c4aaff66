package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SessionRepository implements port.SessionRepository
type SessionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool, logger *zap.Logger) port.SessionRepository {
	return &SessionRepository{pool: pool, logger: logger}
}

// Create inserts a committed session
func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	query := `
		INSERT INTO sessions (id, date, teacher_id, client_id, duration_minutes,
			total_fee, total_support, final_client_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		session.ID,
		session.Date,
		session.TeacherID,
		session.ClientID,
		session.DurationMinutes,
		session.TotalFee,
		session.TotalSupport,
		session.FinalClientCost,
		session.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create session", zap.String("id", session.ID), zap.Error(err))
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ListDetailed returns sessions dated in [start, end), newest first
func (r *SessionRepository) ListDetailed(ctx context.Context, start, end time.Time) ([]entity.SessionDetail, error) {
	q := conn(ctx, r.pool)

	query := `
		SELECT s.id, s.date, s.teacher_id, s.client_id, s.duration_minutes,
			s.total_fee, s.total_support, s.final_client_cost, s.created_at,
			COALESCE(t.name, ''), COALESCE(t.commission_rate, 0), COALESCE(c.name, '')
		FROM sessions s
		LEFT JOIN teachers t ON t.id = s.teacher_id
		LEFT JOIN clients c ON c.id = s.client_id
		WHERE s.date >= $1 AND s.date < $2
		ORDER BY s.date DESC, s.id
	`

	rows, err := q.Query(ctx, query, start, end)
	if err != nil {
		r.logger.Error("Failed to list sessions", zap.Error(err))
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	details := []entity.SessionDetail{}
	index := make(map[string]int)
	for rows.Next() {
		var d entity.SessionDetail
		if err := rows.Scan(
			&d.ID, &d.Date, &d.TeacherID, &d.ClientID, &d.DurationMinutes,
			&d.TotalFee, &d.TotalSupport, &d.FinalClientCost, &d.CreatedAt,
			&d.TeacherName, &d.CommissionRate, &d.ClientName,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		index[d.ID] = len(details)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return details, nil
	}

	usageQuery := `
		SELECT sv.session_id, sv.voucher_id, COALESCE(v.name, ''), sv.used_amount
		FROM session_vouchers sv
		JOIN sessions s ON s.id = sv.session_id
		LEFT JOIN vouchers v ON v.id = sv.voucher_id
		WHERE s.date >= $1 AND s.date < $2
		ORDER BY sv.id
	`

	usageRows, err := q.Query(ctx, usageQuery, start, end)
	if err != nil {
		return nil, fmt.Errorf("list session vouchers: %w", err)
	}
	defer usageRows.Close()

	for usageRows.Next() {
		var sessionID string
		var v entity.VoucherUsageDetail
		if err := usageRows.Scan(&sessionID, &v.VoucherID, &v.VoucherName, &v.UsedAmount); err != nil {
			return nil, fmt.Errorf("scan session voucher: %w", err)
		}
		if i, ok := index[sessionID]; ok {
			details[i].Vouchers = append(details[i].Vouchers, v)
		}
	}
	return details, usageRows.Err()
}

// DeleteAll removes every session together with its voucher usage
func (r *SessionRepository) DeleteAll(ctx context.Context) (int64, error) {
	q := conn(ctx, r.pool)

	if _, err := q.Exec(ctx, `DELETE FROM session_vouchers`); err != nil {
		return 0, fmt.Errorf("delete session vouchers: %w", err)
	}
	tag, err := q.Exec(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UsageRepository implements port.UsageRepository
type UsageRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(pool *pgxpool.Pool, logger *zap.Logger) port.UsageRepository {
	return &UsageRepository{pool: pool, logger: logger}
}

// SumUsage totals the client's usage of a voucher for sessions dated in [start, end)
func (r *UsageRepository) SumUsage(ctx context.Context, clientID, voucherID string, start, end time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(sv.used_amount), 0)::BIGINT
		FROM session_vouchers sv
		JOIN sessions s ON s.id = sv.session_id
		WHERE s.client_id = $1 AND sv.voucher_id = $2 AND s.date >= $3 AND s.date < $4
	`

	var total int64
	if err := conn(ctx, r.pool).QueryRow(ctx, query, clientID, voucherID, start, end).Scan(&total); err != nil {
		r.logger.Error("Failed to sum usage",
			zap.String("client_id", clientID),
			zap.String("voucher_id", voucherID),
			zap.Error(err))
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return total, nil
}

// CountSessionsUsingVoucher counts the client's sessions in [start, end) with a usage row for the voucher
func (r *UsageRepository) CountSessionsUsingVoucher(ctx context.Context, clientID, voucherID string, start, end time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT s.id)
		FROM session_vouchers sv
		JOIN sessions s ON s.id = sv.session_id
		WHERE s.client_id = $1 AND sv.voucher_id = $2 AND s.date >= $3 AND s.date < $4
	`

	var count int64
	if err := conn(ctx, r.pool).QueryRow(ctx, query, clientID, voucherID, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(count), nil
}

// Record inserts one usage row
func (r *UsageRepository) Record(ctx context.Context, usage *entity.SessionVoucherUsage) error {
	query := `INSERT INTO session_vouchers (session_id, voucher_id, used_amount) VALUES ($1, $2, $3)`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, usage.SessionID, usage.VoucherID, usage.UsedAmount); err != nil {
		r.logger.Error("Failed to record usage",
			zap.String("session_id", usage.SessionID),
			zap.String("voucher_id", usage.VoucherID),
			zap.Error(err))
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// LockQuota takes a transaction-scoped advisory lock on the quota key. It is
// released when the ambient transaction commits or rolls back.
func (r *UsageRepository) LockQuota(ctx context.Context, key string) error {
	tx := extractTx(ctx)
	if tx == nil {
		return fmt.Errorf("lock quota %s: %w", key, errNoTransaction)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock quota %s: %w", key, err)
	}
	return nil
}

// Verify interface compliance
var (
	_ port.SessionRepository = (*SessionRepository)(nil)
	_ port.UsageRepository   = (*UsageRepository)(nil)
)
