package entity

import "time"

// Voucher represents a subsidy program with a monthly support pool
type Voucher struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Category               string    `json:"category"`
	MonthlySupportAmount   int64     `json:"monthly_support_amount"`
	PerSessionReferenceFee *int64    `json:"per_session_reference_fee,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// ClientVoucherEnrollment links a client to a voucher and describes how the
// monthly pool is divided and what the client owes for it each month
type ClientVoucherEnrollment struct {
	ClientID              string `json:"client_id"`
	VoucherID             string `json:"voucher_id"`
	MonthlySessionCount   int    `json:"monthly_session_count"`
	MonthlyPersonalBurden int64  `json:"monthly_personal_burden"`
}

// SessionVoucherUsage is the amount a session drew from one voucher's monthly pool
type SessionVoucherUsage struct {
	SessionID  string `json:"session_id"`
	VoucherID  string `json:"voucher_id"`
	UsedAmount int64  `json:"used_amount"`
}
