package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidEmail     ErrorCode = "INVALID_EMAIL"
	ErrCodeInvalidProvider  ErrorCode = "INVALID_PROVIDER"

	ErrCodeInvalidSignature    ErrorCode = "INVALID_SIGNATURE"
	ErrCodeDuplicateReference  ErrorCode = "DUPLICATE_REFERENCE"
	ErrCodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeDecryptionFailure   ErrorCode = "DECRYPTION_FAILURE"
	ErrCodeMisconfiguredSecret ErrorCode = "MISCONFIGURED_SECRET"

	ErrCodeInvalidAPIKey  ErrorCode = "INVALID_API_KEY"
	ErrCodeProviderFailed ErrorCode = "PROVIDER_REQUEST_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// Is lets errors.Is match AppError values by type and code, so sentinel
// errors below survive WithCause/WithDetails cloning.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	// ErrInvalidSignature rejects webhook deliveries no registered provider
	// adapter could verify. The sending provider retries on its own policy.
	ErrInvalidSignature = NewValidationError("Invalid webhook signature", ErrCodeInvalidSignature)

	// ErrDuplicateReference guards the uniqueness invariant on creation.
	ErrDuplicateReference = NewConflictError("Transaction reference already exists", ErrCodeDuplicateReference)

	ErrTransactionNotFound = NewNotFoundError("Transaction not found", ErrCodeTransactionNotFound)

	// ErrDecryptionFailure means the stored ciphertext failed authentication
	// or is malformed. Never degraded to a garbage plaintext.
	ErrDecryptionFailure = &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeDecryptionFailure,
		Message:    "Failed to decrypt provider response",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrMisconfiguredSecret fails an initiation before any network call
	// when the provider secret is absent from configuration.
	ErrMisconfiguredSecret = &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeMisconfiguredSecret,
		Message:    "Provider secret is not configured",
		StatusCode: http.StatusInternalServerError,
	}

	ErrInvalidAPIKey = NewUnauthorizedError("Invalid or missing API key", ErrCodeInvalidAPIKey)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
