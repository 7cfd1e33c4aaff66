package entity

import "time"

// Teacher represents a counselor who is paid a commission on session revenue
type Teacher struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CommissionRate float64   `json:"commission_rate"` // percent, 0-100
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// TeacherAssignment links a teacher to a client they counsel
type TeacherAssignment struct {
	TeacherID string `json:"teacher_id"`
	ClientID  string `json:"client_id"`
}
