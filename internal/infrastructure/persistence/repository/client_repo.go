package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// ClientRepository implements port.ClientRepository
type ClientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *sql.DB, logger *zap.Logger) port.ClientRepository {
	return &ClientRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates a client
func (r *ClientRepository) Save(ctx context.Context, client *entity.Client) error {
	query := `
		INSERT INTO clients (id, name, registration_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			registration_date = excluded.registration_date,
			end_date = excluded.end_date
	`

	_, err := executorFor(ctx, r.db).ExecContext(ctx, query,
		client.ID,
		client.Name,
		nullableTime(client.RegistrationDate),
		nullableTime(client.EndDate),
		utc(client.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save client", zap.String("id", client.ID), zap.Error(err))
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetByID retrieves a client by ID
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	query := `
		SELECT id, name, registration_date, end_date, created_at
		FROM clients
		WHERE id = ?
	`

	client, err := scanClient(executorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get client", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// List returns every client ordered by name
func (r *ClientRepository) List(ctx context.Context) ([]*entity.Client, error) {
	query := `
		SELECT id, name, registration_date, end_date, created_at
		FROM clients
		ORDER BY name, id
	`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*entity.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// AssignTeacher links a teacher to a client
func (r *ClientRepository) AssignTeacher(ctx context.Context, teacherID, clientID string) error {
	query := `INSERT OR IGNORE INTO teacher_clients (teacher_id, client_id) VALUES (?, ?)`

	if _, err := executorFor(ctx, r.db).ExecContext(ctx, query, teacherID, clientID); err != nil {
		r.logger.Error("Failed to assign teacher",
			zap.String("teacher_id", teacherID),
			zap.String("client_id", clientID),
			zap.Error(err))
		return fmt.Errorf("failed to assign teacher: %w", err)
	}
	return nil
}

// ListAssignments returns every teacher-client link
func (r *ClientRepository) ListAssignments(ctx context.Context) ([]entity.TeacherAssignment, error) {
	query := `SELECT teacher_id, client_id FROM teacher_clients ORDER BY client_id, teacher_id`

	rows, err := executorFor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []entity.TeacherAssignment
	for rows.Next() {
		var a entity.TeacherAssignment
		if err := rows.Scan(&a.TeacherID, &a.ClientID); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*entity.Client, error) {
	var client entity.Client
	var registration, end sql.NullTime
	if err := row.Scan(&client.ID, &client.Name, &registration, &end, &client.CreatedAt); err != nil {
		return nil, err
	}
	client.RegistrationDate = timePtr(registration)
	client.EndDate = timePtr(end)
	return &client, nil
}

// Verify interface compliance
var _ port.ClientRepository = (*ClientRepository)(nil)
