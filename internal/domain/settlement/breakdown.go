package settlement

import "github.com/garyjia/counsel-settlement/internal/domain/entity"

// VoucherDeduction is what one voucher contributed to a settlement
type VoucherDeduction struct {
	VoucherID      string `json:"voucher_id"`
	VoucherName    string `json:"voucher_name"`
	UsedThisMonth  int64  `json:"used_this_month"`
	RemainingQuota int64  `json:"remaining_quota"`
	UsedAmount     int64  `json:"used_amount"` // recorded against the monthly pool
}

// Breakdown is the financial result of one settlement
type Breakdown struct {
	Mode            Mode               `json:"mode"`
	SessionFee      int64              `json:"session_fee"`
	ExtraCost       int64              `json:"extra_cost"`
	TotalSupport    int64              `json:"total_support"`
	FinalClientCost int64              `json:"final_client_cost"`
	Usage           []VoucherDeduction `json:"usage"`
	// Lines is a display-only audit trail
	Lines []string `json:"lines"`
}

// UsageMap returns the used amount per voucher
func (b *Breakdown) UsageMap() map[string]int64 {
	m := make(map[string]int64, len(b.Usage))
	for _, u := range b.Usage {
		m[u.VoucherID] = u.UsedAmount
	}
	return m
}

// UsageRows converts the deductions into rows to persist for sessionID
func (b *Breakdown) UsageRows(sessionID string) []entity.SessionVoucherUsage {
	rows := make([]entity.SessionVoucherUsage, 0, len(b.Usage))
	for _, u := range b.Usage {
		rows = append(rows, entity.SessionVoucherUsage{
			SessionID:  sessionID,
			VoucherID:  u.VoucherID,
			UsedAmount: u.UsedAmount,
		})
	}
	return rows
}
