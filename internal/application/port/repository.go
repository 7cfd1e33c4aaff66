package port

import (
	"context"
	"time"

	"github.com/garyjia/counsel-settlement/internal/domain/entity"
)

// TeacherRepository defines persistence operations for Teacher
type TeacherRepository interface {
	Save(ctx context.Context, teacher *entity.Teacher) error
	GetByID(ctx context.Context, id string) (*entity.Teacher, error)
	List(ctx context.Context) ([]*entity.Teacher, error)
}

// ClientRepository defines persistence operations for Client and its teacher assignments
type ClientRepository interface {
	Save(ctx context.Context, client *entity.Client) error
	GetByID(ctx context.Context, id string) (*entity.Client, error)
	List(ctx context.Context) ([]*entity.Client, error)

	// AssignTeacher links a teacher to a client. Assigning twice is a no-op.
	AssignTeacher(ctx context.Context, teacherID, clientID string) error

	ListAssignments(ctx context.Context) ([]entity.TeacherAssignment, error)
}

// VoucherRepository defines persistence operations for Voucher
type VoucherRepository interface {
	Save(ctx context.Context, voucher *entity.Voucher) error
	GetByID(ctx context.Context, id string) (*entity.Voucher, error)
	List(ctx context.Context) ([]*entity.Voucher, error)
}

// EnrollmentRepository defines persistence operations for ClientVoucherEnrollment
type EnrollmentRepository interface {
	// Get returns nil, nil when the client is not enrolled in the voucher
	Get(ctx context.Context, clientID, voucherID string) (*entity.ClientVoucherEnrollment, error)
	ListByClient(ctx context.Context, clientID string) ([]*entity.ClientVoucherEnrollment, error)
	List(ctx context.Context) ([]*entity.ClientVoucherEnrollment, error)

	// ReplaceForClient deletes every enrollment of the client and inserts the given ones
	ReplaceForClient(ctx context.Context, clientID string, enrollments []*entity.ClientVoucherEnrollment) error
}

// CenterScheduleRepository stores the single center fee schedule row
type CenterScheduleRepository interface {
	// Get returns nil, nil when no schedule has been saved yet
	Get(ctx context.Context) (*entity.CenterFeeSchedule, error)
	Save(ctx context.Context, schedule *entity.CenterFeeSchedule) error
}

// SessionRepository defines persistence operations for committed sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error

	// ListDetailed returns sessions dated in [start, end) joined with teacher,
	// client and voucher usage details
	ListDetailed(ctx context.Context, start, end time.Time) ([]entity.SessionDetail, error)

	// DeleteAll removes every session and its usage rows, returning the session count
	DeleteAll(ctx context.Context) (int64, error)
}

// UsageRepository reads and writes the per-session voucher usage ledger
type UsageRepository interface {
	// SumUsage totals used amounts for sessions of the client dated in [start, end)
	SumUsage(ctx context.Context, clientID, voucherID string, start, end time.Time) (int64, error)

	// CountSessionsUsingVoucher counts the client's sessions in [start, end) that used the voucher
	CountSessionsUsingVoucher(ctx context.Context, clientID, voucherID string, start, end time.Time) (int, error)

	Record(ctx context.Context, usage *entity.SessionVoucherUsage) error

	// LockQuota serializes writers of one quota key for the rest of the ambient transaction.
	// Stores that already serialize write transactions may treat it as a no-op.
	LockQuota(ctx context.Context, key string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
