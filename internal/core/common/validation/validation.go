package validation

import (
	"fmt"
	"net/mail"

	errors "github.com/frahmantamala/payment-orchestration/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
	errors []errors.ValidationError
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]FieldValidator, 0),
		errors: make([]errors.ValidationError, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		switch v := value.(type) {
		case string:
			if v == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case int64:
			if v == 0 {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case *string:
			if v == nil || *v == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(int64); ok {
			if v < min {
				message := fmt.Sprintf("%s must be at least %d", fv.FieldName, min)
				return errors.NewValidationFieldError(fv.FieldName, message, code)
			}
		}
		return nil
	})
	return fv
}

// Email validates the value parses as an RFC 5322 address.
func (fv *FieldValidator) Email(code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && v != "" {
			if _, err := mail.ParseAddress(v); err != nil {
				message := fmt.Sprintf("%s must be a valid email address", fv.FieldName)
				return errors.NewValidationFieldError(fv.FieldName, message, code)
			}
		}
		return nil
	})
	return fv
}

// OneOf validates the value is one of the allowed strings; an empty string
// passes so it composes with optional fields.
func (fv *FieldValidator) OneOf(code errors.ErrorCode, allowed ...string) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok || v == "" {
			return nil
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		message := fmt.Sprintf("%s must be one of %v", fv.FieldName, allowed)
		return errors.NewValidationFieldError(fv.FieldName, message, code)
	})
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	for _, field := range v.fields {
		for _, validator := range field.Validators {
			if err := validator(field.Value); err != nil {
				if details, ok := err.Details.(errors.ValidationErrors); ok {
					v.errors = append(v.errors, details.Errors...)
				}
			}
		}
	}

	if len(v.errors) > 0 {
		appErr := errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed)
		return appErr.WithDetails(errors.ValidationErrors{Errors: v.errors})
	}

	return nil
}
