package settlement

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/counsel-settlement/internal/domain/entity"
	"github.com/go-playground/validator/v10"
)

// Request is the immutable input of one settlement
type Request struct {
	Date            time.Time `json:"date"`
	TeacherID       string    `json:"teacher_id" validate:"required"`
	ClientID        string    `json:"client_id" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"min=1,max=600"`
	VoucherIDs      []string  `json:"voucher_ids" validate:"unique,dive,required"`
}

// VoucherInput carries one selected voucher with its enrollment and the amount
// already consumed from its pool this month
type VoucherInput struct {
	Voucher       entity.Voucher
	Enrollment    *entity.ClientVoucherEnrollment // nil when the client is not enrolled
	UsedThisMonth int64
}

// Input is everything Compute needs. Vouchers must follow Request.VoucherIDs order.
type Input struct {
	Request  Request
	Tariff   Tariff
	Vouchers []VoucherInput
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report JSON names instead of Go field names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateRequest checks the request shape. Referential checks against master
// data happen in the service layer.
func ValidateRequest(req Request) error {
	if req.Date.IsZero() {
		return NewValidationError("date", "is required")
	}
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return NewValidationError("", err.Error())
	}
	fe := verrs[0]
	return NewValidationError(fe.Field(), describeTag(fe))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "unique":
		return "must not contain duplicates"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
