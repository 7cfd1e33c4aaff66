package settlement

import "github.com/garyjia/counsel-settlement/internal/domain/entity"

// Tariff is the center's time-tiered base pricing
type Tariff struct {
	BaseFee               int64
	ExtraFeePerTenMinutes int64
}

// DefaultTariff is used when the center has no saved fee schedule
func DefaultTariff() Tariff {
	return Tariff{
		BaseFee:               entity.DefaultBaseFee,
		ExtraFeePerTenMinutes: entity.DefaultExtraFeePerTenMinutes,
	}
}

// TariffFromSchedule converts a stored schedule, falling back to the defaults
// when the schedule is missing
func TariffFromSchedule(schedule *entity.CenterFeeSchedule) Tariff {
	if schedule == nil {
		return DefaultTariff()
	}
	return Tariff{
		BaseFee:               schedule.BaseFee,
		ExtraFeePerTenMinutes: schedule.ExtraFeePerTenMinutes,
	}
}

// ExtraUnits is the number of started 10-minute blocks beyond the reference duration
func ExtraUnits(durationMinutes int) int64 {
	extra := durationMinutes - entity.ReferenceDurationMinutes
	if extra <= 0 {
		return 0
	}
	return int64((extra + entity.ExtraFeeBlockMinutes - 1) / entity.ExtraFeeBlockMinutes)
}

// ExtraCost is the time surcharge. It is always paid by the client.
func (t Tariff) ExtraCost(durationMinutes int) int64 {
	return ExtraUnits(durationMinutes) * t.ExtraFeePerTenMinutes
}

// SessionFee is the plain center price for a session of the given length
func (t Tariff) SessionFee(durationMinutes int) int64 {
	return t.BaseFee + t.ExtraCost(durationMinutes)
}
