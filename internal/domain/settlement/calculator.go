// Package settlement turns a session request into a financial breakdown:
// fee owed, subsidy consumed and client copay.
package settlement

import "fmt"

// Compute settles one session. It is pure: the caller supplies the tariff,
// the selected vouchers and each voucher's usage so far this month.
func Compute(in Input) (*Breakdown, error) {
	if err := ValidateRequest(in.Request); err != nil {
		return nil, err
	}
	if in.Tariff.BaseFee < 0 || in.Tariff.ExtraFeePerTenMinutes < 0 {
		return nil, NewValidationError("center_schedule", "fees must not be negative")
	}
	if len(in.Vouchers) != len(in.Request.VoucherIDs) {
		return nil, NewValidationError("voucher_ids",
			fmt.Sprintf("%d vouchers selected but %d resolved", len(in.Request.VoucherIDs), len(in.Vouchers)))
	}
	for i, v := range in.Vouchers {
		if v.Voucher.ID != in.Request.VoucherIDs[i] {
			return nil, NewValidationError("voucher_ids",
				fmt.Sprintf("voucher %d resolved as %s, want %s", i, v.Voucher.ID, in.Request.VoucherIDs[i]))
		}
	}

	mode := ModeFor(len(in.Vouchers))
	breakdown, err := strategies[mode](in)
	if err != nil {
		return nil, err
	}

	if breakdown.FinalClientCost < 0 || breakdown.TotalSupport < 0 {
		return nil, fmt.Errorf("settlement produced negative amounts: support=%d client=%d",
			breakdown.TotalSupport, breakdown.FinalClientCost)
	}
	return breakdown, nil
}
