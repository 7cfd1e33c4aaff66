package settlement

import (
	"testing"

	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestTariff_ExtraCost(t *testing.T) {
	tariff := DefaultTariff()

	tests := []struct {
		duration int
		want     int64
	}{
		{30, 0},
		{40, 0},
		{41, 10000},
		{50, 10000},
		{51, 20000},
		{60, 20000},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tariff.ExtraCost(tt.duration), "duration %d", tt.duration)
	}
}

func TestTariff_SessionFee(t *testing.T) {
	tariff := Tariff{BaseFee: 60000, ExtraFeePerTenMinutes: 5000}
	assert.Equal(t, int64(60000), tariff.SessionFee(40))
	assert.Equal(t, int64(70000), tariff.SessionFee(60))
}

func TestTariffFromSchedule(t *testing.T) {
	assert.Equal(t, DefaultTariff(), TariffFromSchedule(nil))
	assert.Equal(t, Tariff{BaseFee: 1, ExtraFeePerTenMinutes: 2},
		TariffFromSchedule(&entity.CenterFeeSchedule{BaseFee: 1, ExtraFeePerTenMinutes: 2}))
	assert.Equal(t, int64(55000), DefaultTariff().BaseFee)
	assert.Equal(t, int64(10000), DefaultTariff().ExtraFeePerTenMinutes)
}
