package entity

import "time"

// Session represents one recorded counseling session and its settlement.
// Sessions are immutable once committed.
type Session struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	TeacherID       string    `json:"teacher_id"`
	ClientID        string    `json:"client_id"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalFee        int64     `json:"total_fee"`
	TotalSupport    int64     `json:"total_support"`
	FinalClientCost int64     `json:"final_client_cost"`
	CreatedAt       time.Time `json:"created_at"`
}

// VoucherUsageDetail is a usage row joined with its voucher name
type VoucherUsageDetail struct {
	VoucherID   string `json:"voucher_id"`
	VoucherName string `json:"voucher_name"`
	UsedAmount  int64  `json:"used_amount"`
}

// SessionDetail is a session joined with the master data reports need
type SessionDetail struct {
	Session
	TeacherName    string               `json:"teacher_name"`
	ClientName     string               `json:"client_name"`
	CommissionRate float64              `json:"commission_rate"`
	Vouchers       []VoucherUsageDetail `json:"vouchers,omitempty"`
}

// CenterFeeSchedule is the center's time-based tariff
type CenterFeeSchedule struct {
	BaseFee               int64     `json:"base_fee"`
	ExtraFeePerTenMinutes int64     `json:"extra_fee_per_10min"`
	UpdatedAt             time.Time `json:"updated_at"`
}
