package event

// Type identifies the type of domain event
type Type string

const (
	TypeSessionSettled        Type = "session.settled"
	TypeSessionsReset         Type = "sessions.reset"
	TypeEnrollmentsReplaced   Type = "enrollments.replaced"
	TypeCenterScheduleUpdated Type = "center_schedule.updated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSessionSettled,
		TypeSessionsReset,
		TypeEnrollmentsReplaced,
		TypeCenterScheduleUpdated:
		return true
	default:
		return false
	}
}
