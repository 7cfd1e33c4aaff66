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

// SessionRepository implements port.SessionRepository
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB, logger *zap.Logger) port.SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a committed session
func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	query := `
		INSERT INTO sessions (
			id, date, teacher_id, client_id, duration_minutes,
			total_fee, total_support, final_client_cost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		session.ID,
		utc(session.Date),
		session.TeacherID,
		session.ClientID,
		session.DurationMinutes,
		session.TotalFee,
		session.TotalSupport,
		session.FinalClientCost,
		utc(session.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create session", zap.String("id", session.ID), zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// ListDetailed returns sessions dated in [start, end), newest first, with
// teacher, client and voucher usage details
func (r *SessionRepository) ListDetailed(ctx context.Context, start, end time.Time) ([]entity.SessionDetail, error) {
	exec := executorFor(ctx, r.db)

	query := `
		SELECT s.id, s.date, s.teacher_id, s.client_id, s.duration_minutes,
			s.total_fee, s.total_support, s.final_client_cost, s.created_at,
			COALESCE(t.name, ''), COALESCE(t.commission_rate, 0), COALESCE(c.name, '')
		FROM sessions s
		LEFT JOIN teachers t ON t.id = s.teacher_id
		LEFT JOIN clients c ON c.id = s.client_id
		WHERE s.date >= ? AND s.date < ?
		ORDER BY s.date DESC, s.id
	`

	rows, err := exec.QueryContext(ctx, query, utc(start), utc(end))
	if err != nil {
		r.logger.Error("Failed to list sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	details := []entity.SessionDetail{}
	index := make(map[string]int)
	for rows.Next() {
		var d entity.SessionDetail
		if err := rows.Scan(
			&d.ID,
			&d.Date,
			&d.TeacherID,
			&d.ClientID,
			&d.DurationMinutes,
			&d.TotalFee,
			&d.TotalSupport,
			&d.FinalClientCost,
			&d.CreatedAt,
			&d.TeacherName,
			&d.CommissionRate,
			&d.ClientName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
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
		WHERE s.date >= ? AND s.date < ?
		ORDER BY sv.id
	`

	usageRows, err := exec.QueryContext(ctx, usageQuery, utc(start), utc(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list session vouchers: %w", err)
	}
	defer usageRows.Close()

	for usageRows.Next() {
		var sessionID string
		var v entity.VoucherUsageDetail
		if err := usageRows.Scan(&sessionID, &v.VoucherID, &v.VoucherName, &v.UsedAmount); err != nil {
			return nil, fmt.Errorf("failed to scan session voucher: %w", err)
		}
		if i, ok := index[sessionID]; ok {
			details[i].Vouchers = append(details[i].Vouchers, v)
		}
	}
	return details, usageRows.Err()
}

// DeleteAll removes every session together with its voucher usage
func (r *SessionRepository) DeleteAll(ctx context.Context) (int64, error) {
	exec := executorFor(ctx, r.db)

	if _, err := exec.ExecContext(ctx, `DELETE FROM session_vouchers`); err != nil {
		r.logger.Error("Failed to delete session vouchers", zap.Error(err))
		return 0, fmt.Errorf("failed to delete session vouchers: %w", err)
	}
	result, err := exec.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		r.logger.Error("Failed to delete sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return result.RowsAffected()
}

// Verify interface compliance
var _ port.SessionRepository = (*SessionRepository)(nil)
