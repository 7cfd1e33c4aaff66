package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// TeacherRepository implements port.TeacherRepository
type TeacherRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTeacherRepository creates a new teacher repository
func NewTeacherRepository(db *sql.DB, logger *zap.Logger) port.TeacherRepository {
	return &TeacherRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates a teacher
func (r *TeacherRepository) Save(ctx context.Context, teacher *entity.Teacher) error {
	query := `
		INSERT INTO teachers (id, name, commission_rate, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			commission_rate = excluded.commission_rate,
			active = excluded.active
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		teacher.ID,
		teacher.Name,
		teacher.CommissionRate,
		teacher.Active,
		utc(teacher.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save teacher", zap.String("id", teacher.ID), zap.Error(err))
		return fmt.Errorf("failed to save teacher: %w", err)
	}
	return nil
}

// GetByID retrieves a teacher by ID
func (r *TeacherRepository) GetByID(ctx context.Context, id string) (*entity.Teacher, error) {
	query := `
		SELECT id, name, commission_rate, active, created_at
		FROM teachers
		WHERE id = ?
	`

	var teacher entity.Teacher
	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&teacher.ID,
		&teacher.Name,
		&teacher.CommissionRate,
		&teacher.Active,
		&teacher.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get teacher", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get teacher: %w", err)
	}
	return &teacher, nil
}

// List returns every teacher ordered by name
func (r *TeacherRepository) List(ctx context.Context) ([]*entity.Teacher, error) {
	query := `
		SELECT id, name, commission_rate, active, created_at
		FROM teachers
		ORDER BY name, id
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	var teachers []*entity.Teacher
	for rows.Next() {
		var teacher entity.Teacher
		if err := rows.Scan(
			&teacher.ID,
			&teacher.Name,
			&teacher.CommissionRate,
			&teacher.Active,
			&teacher.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan teacher: %w", err)
		}
		teachers = append(teachers, &teacher)
	}
	return teachers, rows.Err()
}

// Verify interface compliance
var _ port.TeacherRepository = (*TeacherRepository)(nil)
