package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TeacherRepository implements port.TeacherRepository
type TeacherRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTeacherRepository creates a new teacher repository
func NewTeacherRepository(pool *pgxpool.Pool, logger *zap.Logger) port.TeacherRepository {
	return &TeacherRepository{pool: pool, logger: logger}
}

// Save inserts or updates a teacher
func (r *TeacherRepository) Save(ctx context.Context, teacher *entity.Teacher) error {
	query := `
		INSERT INTO teachers (id, name, commission_rate, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			commission_rate = EXCLUDED.commission_rate,
			active = EXCLUDED.active
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		teacher.ID, teacher.Name, teacher.CommissionRate, teacher.Active, teacher.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to save teacher", zap.String("id", teacher.ID), zap.Error(err))
		return fmt.Errorf("save teacher: %w", err)
	}
	return nil
}

// GetByID retrieves a teacher by ID
func (r *TeacherRepository) GetByID(ctx context.Context, id string) (*entity.Teacher, error) {
	query := `SELECT id, name, commission_rate, active, created_at FROM teachers WHERE id = $1`

	var t entity.Teacher
	err := conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.CommissionRate, &t.Active, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get teacher by id: %w", err)
	}
	return &t, nil
}

// List returns every teacher ordered by name
func (r *TeacherRepository) List(ctx context.Context) ([]*entity.Teacher, error) {
	query := `SELECT id, name, commission_rate, active, created_at FROM teachers ORDER BY name, id`

	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	defer rows.Close()

	var teachers []*entity.Teacher
	for rows.Next() {
		var t entity.Teacher
		if err := rows.Scan(&t.ID, &t.Name, &t.CommissionRate, &t.Active, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan teacher: %w", err)
		}
		teachers = append(teachers, &t)
	}
	return teachers, rows.Err()
}

// ClientRepository implements port.ClientRepository
type ClientRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewClientRepository creates a new client repository
func NewClientRepository(pool *pgxpool.Pool, logger *zap.Logger) port.ClientRepository {
	return &ClientRepository{pool: pool, logger: logger}
}

// Save inserts or updates a client
func (r *ClientRepository) Save(ctx context.Context, client *entity.Client) error {
	query := `
		INSERT INTO clients (id, name, registration_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			registration_date = EXCLUDED.registration_date,
			end_date = EXCLUDED.end_date
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		client.ID, client.Name, client.RegistrationDate, client.EndDate, client.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to save client", zap.String("id", client.ID), zap.Error(err))
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

// GetByID retrieves a client by ID
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	query := `SELECT id, name, registration_date, end_date, created_at FROM clients WHERE id = $1`

	var c entity.Client
	err := conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.RegistrationDate, &c.EndDate, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get client by id: %w", err)
	}
	return &c, nil
}

// List returns every client ordered by name
func (r *ClientRepository) List(ctx context.Context) ([]*entity.Client, error) {
	query := `SELECT id, name, registration_date, end_date, created_at FROM clients ORDER BY name, id`

	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []*entity.Client
	for rows.Next() {
		var c entity.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.RegistrationDate, &c.EndDate, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// AssignTeacher links a teacher to a client
func (r *ClientRepository) AssignTeacher(ctx context.Context, teacherID, clientID string) error {
	query := `INSERT INTO teacher_clients (teacher_id, client_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, teacherID, clientID); err != nil {
		r.logger.Error("Failed to assign teacher",
			zap.String("teacher_id", teacherID),
			zap.String("client_id", clientID),
			zap.Error(err))
		return fmt.Errorf("assign teacher: %w", err)
	}
	return nil
}

// ListAssignments returns every teacher-client link
func (r *ClientRepository) ListAssignments(ctx context.Context) ([]entity.TeacherAssignment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT teacher_id, client_id FROM teacher_clients ORDER BY client_id, teacher_id`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []entity.TeacherAssignment
	for rows.Next() {
		var a entity.TeacherAssignment
		if err := rows.Scan(&a.TeacherID, &a.ClientID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// VoucherRepository implements port.VoucherRepository
type VoucherRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(pool *pgxpool.Pool, logger *zap.Logger) port.VoucherRepository {
	return &VoucherRepository{pool: pool, logger: logger}
}

// Save inserts or updates a voucher
func (r *VoucherRepository) Save(ctx context.Context, voucher *entity.Voucher) error {
	query := `
		INSERT INTO vouchers (id, name, category, monthly_support_amount, per_session_reference_fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			monthly_support_amount = EXCLUDED.monthly_support_amount,
			per_session_reference_fee = EXCLUDED.per_session_reference_fee
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		voucher.ID,
		voucher.Name,
		voucher.Category,
		voucher.MonthlySupportAmount,
		voucher.PerSessionReferenceFee,
		voucher.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save voucher", zap.String("id", voucher.ID), zap.Error(err))
		return fmt.Errorf("save voucher: %w", err)
	}
	return nil
}

const voucherColumns = `id, name, category, monthly_support_amount, per_session_reference_fee, created_at`

// GetByID retrieves a voucher by ID
func (r *VoucherRepository) GetByID(ctx context.Context, id string) (*entity.Voucher, error) {
	var v entity.Voucher
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id).Scan(
		&v.ID, &v.Name, &v.Category, &v.MonthlySupportAmount, &v.PerSessionReferenceFee, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get voucher by id: %w", err)
	}
	return &v, nil
}

// List returns every voucher ordered by name
func (r *VoucherRepository) List(ctx context.Context) ([]*entity.Voucher, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []*entity.Voucher
	for rows.Next() {
		var v entity.Voucher
		if err := rows.Scan(&v.ID, &v.Name, &v.Category, &v.MonthlySupportAmount, &v.PerSessionReferenceFee, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		vouchers = append(vouchers, &v)
	}
	return vouchers, rows.Err()
}

// EnrollmentRepository implements port.EnrollmentRepository
type EnrollmentRepository struct {
	pool      *pgxpool.Pool
	txManager *TxManager
	logger    *zap.Logger
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(pool *pgxpool.Pool, logger *zap.Logger) port.EnrollmentRepository {
	return &EnrollmentRepository{
		pool:      pool,
		txManager: NewTxManager(pool, logger),
		logger:    logger,
	}
}

const enrollmentColumns = `client_id, voucher_id, monthly_session_count, monthly_personal_burden`

// Get returns the enrollment, or nil when the client is not enrolled
func (r *EnrollmentRepository) Get(ctx context.Context, clientID, voucherID string) (*entity.ClientVoucherEnrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM client_vouchers WHERE client_id = $1 AND voucher_id = $2`

	var e entity.ClientVoucherEnrollment
	err := conn(ctx, r.pool).QueryRow(ctx, query, clientID, voucherID).Scan(
		&e.ClientID, &e.VoucherID, &e.MonthlySessionCount, &e.MonthlyPersonalBurden)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &e, nil
}

// ListByClient returns the client's enrollments
func (r *EnrollmentRepository) ListByClient(ctx context.Context, clientID string) ([]*entity.ClientVoucherEnrollment, error) {
	return r.query(ctx, `SELECT `+enrollmentColumns+` FROM client_vouchers WHERE client_id = $1 ORDER BY voucher_id`, clientID)
}

// List returns every enrollment
func (r *EnrollmentRepository) List(ctx context.Context) ([]*entity.ClientVoucherEnrollment, error) {
	return r.query(ctx, `SELECT `+enrollmentColumns+` FROM client_vouchers ORDER BY client_id, voucher_id`)
}

func (r *EnrollmentRepository) query(ctx context.Context, query string, args ...any) ([]*entity.ClientVoucherEnrollment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*entity.ClientVoucherEnrollment
	for rows.Next() {
		var e entity.ClientVoucherEnrollment
		if err := rows.Scan(&e.ClientID, &e.VoucherID, &e.MonthlySessionCount, &e.MonthlyPersonalBurden); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		enrollments = append(enrollments, &e)
	}
	return enrollments, rows.Err()
}

// ReplaceForClient deletes and reinserts the client's enrollments in one transaction
func (r *EnrollmentRepository) ReplaceForClient(ctx context.Context, clientID string, enrollments []*entity.ClientVoucherEnrollment) error {
	return r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		q := conn(txCtx, r.pool)

		if _, err := q.Exec(txCtx, `DELETE FROM client_vouchers WHERE client_id = $1`, clientID); err != nil {
			return fmt.Errorf("delete enrollments: %w", err)
		}

		query := `INSERT INTO client_vouchers (` + enrollmentColumns + `) VALUES ($1, $2, $3, $4)`
		for _, e := range enrollments {
			if _, err := q.Exec(txCtx, query, clientID, e.VoucherID, e.MonthlySessionCount, e.MonthlyPersonalBurden); err != nil {
				r.logger.Error("Failed to insert enrollment",
					zap.String("client_id", clientID),
					zap.String("voucher_id", e.VoucherID),
					zap.Error(err))
				return fmt.Errorf("insert enrollment: %w", err)
			}
		}
		return nil
	})
}

// CenterScheduleRepository implements port.CenterScheduleRepository
type CenterScheduleRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewCenterScheduleRepository creates a new schedule repository
func NewCenterScheduleRepository(pool *pgxpool.Pool, logger *zap.Logger) port.CenterScheduleRepository {
	return &CenterScheduleRepository{pool: pool, logger: logger}
}

// Get returns the saved schedule, or nil when none exists
func (r *CenterScheduleRepository) Get(ctx context.Context) (*entity.CenterFeeSchedule, error) {
	query := `SELECT base_fee, extra_fee_per_10min, updated_at FROM center_settings WHERE id = 1`

	var s entity.CenterFeeSchedule
	err := conn(ctx, r.pool).QueryRow(ctx, query).Scan(&s.BaseFee, &s.ExtraFeePerTenMinutes, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get center schedule: %w", err)
	}
	return &s, nil
}

// Save stores the schedule
func (r *CenterScheduleRepository) Save(ctx context.Context, schedule *entity.CenterFeeSchedule) error {
	query := `
		INSERT INTO center_settings (id, base_fee, extra_fee_per_10min, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			base_fee = EXCLUDED.base_fee,
			extra_fee_per_10min = EXCLUDED.extra_fee_per_10min,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, schedule.BaseFee, schedule.ExtraFeePerTenMinutes, schedule.UpdatedAt); err != nil {
		r.logger.Error("Failed to save center schedule", zap.Error(err))
		return fmt.Errorf("save center schedule: %w", err)
	}
	return nil
}

// Verify interface compliance
var (
	_ port.TeacherRepository        = (*TeacherRepository)(nil)
	_ port.ClientRepository         = (*ClientRepository)(nil)
	_ port.VoucherRepository        = (*VoucherRepository)(nil)
	_ port.EnrollmentRepository     = (*EnrollmentRepository)(nil)
	_ port.CenterScheduleRepository = (*CenterScheduleRepository)(nil)
)
