package entity

// Voucher category constants
const (
	VoucherCategoryEducationOffice = "education_office" // 교육청
	VoucherCategoryGovernment      = "government"       // 정부
)

// Center fee schedule defaults, used when no schedule has been saved
const (
	DefaultBaseFee               int64 = 55000
	DefaultExtraFeePerTenMinutes int64 = 10000
	ReferenceDurationMinutes           = 40
	ExtraFeeBlockMinutes               = 10
)

// DefaultMonthlySessionCount applies when a voucher is used without an enrollment
const DefaultMonthlySessionCount = 4

// IsValidVoucherCategory reports whether category is one of the known categories
func IsValidVoucherCategory(category string) bool {
	switch category {
	case VoucherCategoryEducationOffice, VoucherCategoryGovernment:
		return true
	}
	return false
}
