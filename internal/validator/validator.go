package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/calendar"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// Get returns a singleton validator instance that reports json field names.
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New()

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = validate.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
			_, err := utils.ParseDate(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("time_slot", func(fl validator.FieldLevel) bool {
			_, _, err := calendar.ParseSlot(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, err := calendar.ParseWeekday(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			digits := 0
			for _, r := range fl.Field().String() {
				switch {
				case r >= '0' && r <= '9':
					digits++
				case strings.ContainsRune("+-(). ", r):
				default:
					return false
				}
			}
			return digits >= 6 && digits <= 15
		})
	})
	return validate
}

// Validate validates a struct. Failures are returned wrapping apperrors.ErrValidation.
func Validate(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' %s", e.Field(), getErrorMessage(e)))
	}
	return fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(messages, "; "))
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	if err := Get().Var(field, tag); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}
	return nil
}

func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", strings.ToLower(e.Param()))
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "calendar_date":
		return "must be a date formatted YYYY-MM-DD"
	case "time_slot":
		return "must be a time slot like 10:00 AM"
	case "weekday":
		return "must be a weekday name"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed '%s' validation", e.Tag())
	}
}
