package settlement

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/garyjia/counsel-settlement/internal/domain/entity"
)

// Mode is the settlement variant, chosen by how many vouchers were selected
type Mode string

const (
	ModeNoVoucher     Mode = "no_voucher"
	ModeSingleVoucher Mode = "single_voucher"
	ModeMultiVoucher  Mode = "multi_voucher"
)

// ModeFor returns the mode for a selection of n vouchers
func ModeFor(n int) Mode {
	switch {
	case n <= 0:
		return ModeNoVoucher
	case n == 1:
		return ModeSingleVoucher
	default:
		return ModeMultiVoucher
	}
}

type strategy func(in Input) (*Breakdown, error)

var strategies = map[Mode]strategy{
	ModeNoVoucher:     computeNoVoucher,
	ModeSingleVoucher: computeSingleVoucher,
	ModeMultiVoucher:  computeMultiVoucher,
}

// computeNoVoucher bills the plain center tariff to the client
func computeNoVoucher(in Input) (*Breakdown, error) {
	duration := in.Request.DurationMinutes
	extra := in.Tariff.ExtraCost(duration)
	fee := in.Tariff.BaseFee + extra

	lines := tariffLines(in.Tariff, duration, extra, fee)
	lines = append(lines, "(no voucher)")
	lines = append(lines, "client cost: "+won(fee))

	return &Breakdown{
		Mode:            ModeNoVoucher,
		SessionFee:      fee,
		ExtraCost:       extra,
		TotalSupport:    0,
		FinalClientCost: fee,
		Usage:           []VoucherDeduction{},
		Lines:           lines,
	}, nil
}

// computeSingleVoucher prices the session at the voucher's per-session share of
// its monthly pool. The client's burden is taken in proportion to what the pool
// can still cover, so a partly spent pool still charges a fair share and a spent
// pool degrades to full self-pay.
func computeSingleVoucher(in Input) (*Breakdown, error) {
	v := in.Vouchers[0]
	count, burden, err := enrollmentTerms(v)
	if err != nil {
		return nil, err
	}

	supportAmount := v.Voucher.MonthlySupportAmount
	baseSessionFee := supportAmount / int64(count)
	baseSessionBurden := burden / int64(count)

	remaining := max(0, supportAmount-v.UsedThisMonth)
	deduction := min(baseSessionFee, remaining)

	var proportionalBurden int64
	if baseSessionFee > 0 {
		proportionalBurden = deduction * baseSessionBurden / baseSessionFee
	}
	realSupport := max(0, deduction-proportionalBurden)

	extra := in.Tariff.ExtraCost(in.Request.DurationMinutes)
	fee := baseSessionFee + extra
	clientCost := fee - realSupport

	lines := []string{
		fmt.Sprintf("--- %s ---", v.Voucher.Name),
		fmt.Sprintf("per-session fee: %s (%s / %d sessions)", won(baseSessionFee), won(supportAmount), count),
	}
	if extra > 0 {
		lines = append(lines, fmt.Sprintf("extra fee: +%s (%d min)", won(extra), in.Request.DurationMinutes-entity.ReferenceDurationMinutes))
	}
	lines = append(lines,
		fmt.Sprintf("monthly limit: %s / used this month: %s", won(supportAmount), won(v.UsedThisMonth)),
		"remaining limit: "+won(remaining),
		fmt.Sprintf("personal burden: %s (of %s per session)", won(proportionalBurden), won(baseSessionBurden)),
		"support applied: -"+won(realSupport),
	)
	if remaining == 0 {
		lines = append(lines, "! monthly limit exhausted")
	}
	lines = append(lines, "client cost: "+won(clientCost))

	return &Breakdown{
		Mode:            ModeSingleVoucher,
		SessionFee:      fee,
		ExtraCost:       extra,
		TotalSupport:    realSupport,
		FinalClientCost: clientCost,
		Usage: []VoucherDeduction{{
			VoucherID:      v.Voucher.ID,
			VoucherName:    v.Voucher.Name,
			UsedThisMonth:  v.UsedThisMonth,
			RemainingQuota: remaining,
			UsedAmount:     deduction,
		}},
		Lines: lines,
	}, nil
}

// computeMultiVoucher bills the plain center tariff and draws it down across
// the vouchers in selection order.
//
// NOTE: personal burden is deliberately not applied here, unlike the single
// voucher mode. This asymmetry is a business rule; keep it until the center
// changes its requirements.
func computeMultiVoucher(in Input) (*Breakdown, error) {
	duration := in.Request.DurationMinutes
	extra := in.Tariff.ExtraCost(duration)
	fee := in.Tariff.BaseFee + extra

	lines := tariffLines(in.Tariff, duration, extra, fee)

	feeRemaining := fee
	var totalSupport int64
	usage := make([]VoucherDeduction, 0, len(in.Vouchers))

	for _, v := range in.Vouchers {
		if v.Voucher.MonthlySupportAmount < 0 {
			return nil, NewValidationError("monthly_support_amount", fmt.Sprintf("voucher %s has a negative support amount", v.Voucher.ID))
		}
		remaining := max(0, v.Voucher.MonthlySupportAmount-v.UsedThisMonth)
		deduction := min(feeRemaining, remaining)
		feeRemaining -= deduction
		totalSupport += deduction

		usage = append(usage, VoucherDeduction{
			VoucherID:      v.Voucher.ID,
			VoucherName:    v.Voucher.Name,
			UsedThisMonth:  v.UsedThisMonth,
			RemainingQuota: remaining,
			UsedAmount:     deduction,
		})

		lines = append(lines,
			fmt.Sprintf("--- %s ---", v.Voucher.Name),
			fmt.Sprintf("monthly limit: %s / used this month: %s", won(v.Voucher.MonthlySupportAmount), won(v.UsedThisMonth)),
			"remaining limit: "+won(remaining),
			"support applied: -"+won(deduction),
		)
		if remaining == 0 {
			lines = append(lines, "! monthly limit exhausted")
		}
	}

	if feeRemaining > 0 {
		lines = append(lines, "uncovered difference: +"+won(feeRemaining))
	}
	lines = append(lines, "client cost: "+won(feeRemaining))

	return &Breakdown{
		Mode:            ModeMultiVoucher,
		SessionFee:      fee,
		ExtraCost:       extra,
		TotalSupport:    totalSupport,
		FinalClientCost: feeRemaining,
		Usage:           usage,
		Lines:           lines,
	}, nil
}

// enrollmentTerms returns the session count and monthly burden for a voucher.
// A missing enrollment falls back to the default count with no burden; an
// enrollment with a non-positive count is rejected before any division.
func enrollmentTerms(v VoucherInput) (int, int64, error) {
	if v.Voucher.MonthlySupportAmount < 0 {
		return 0, 0, NewValidationError("monthly_support_amount", fmt.Sprintf("voucher %s has a negative support amount", v.Voucher.ID))
	}
	if v.Enrollment == nil {
		return entity.DefaultMonthlySessionCount, 0, nil
	}
	if v.Enrollment.MonthlySessionCount <= 0 {
		return 0, 0, NewValidationError("monthly_session_count", fmt.Sprintf("must be greater than zero for voucher %s", v.Voucher.ID))
	}
	if v.Enrollment.MonthlyPersonalBurden < 0 {
		return 0, 0, NewValidationError("monthly_personal_burden", fmt.Sprintf("must not be negative for voucher %s", v.Voucher.ID))
	}
	return v.Enrollment.MonthlySessionCount, v.Enrollment.MonthlyPersonalBurden, nil
}

func tariffLines(t Tariff, duration int, extra, fee int64) []string {
	lines := []string{"base fee: " + won(t.BaseFee)}
	if extra > 0 {
		lines = append(lines, fmt.Sprintf("extra fee: +%s (%d min)", won(extra), duration-entity.ReferenceDurationMinutes))
	}
	return append(lines, "session fee: "+won(fee))
}

func won(amount int64) string {
	return humanize.Comma(amount)
}
