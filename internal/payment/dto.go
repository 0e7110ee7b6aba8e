package payment

import (
	errors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/common/validation"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
)

// InitiatePaymentRequest is the payload for POST /payments/initiate.
// Amount is in major currency units.
type InitiatePaymentRequest struct {
	Amount             int64          `json:"amount"`
	Currency           string         `json:"currency"`
	ProviderPreference string         `json:"provider_preference,omitempty"`
	Customer           Customer       `json:"customer"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

type Customer struct {
	Email string `json:"email"`
}

func (r *InitiatePaymentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("currency", r.Currency).Required()
	validator.Field("customer.email", r.Customer.Email).Required().Email(errors.ErrCodeInvalidEmail)
	validator.Field("provider_preference", r.ProviderPreference).
		OneOf(errors.ErrCodeInvalidProvider, transaction.ProviderPaystack, transaction.ProviderFlutterwave)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// WebhookAck is the fixed acknowledgement body returned for every verified
// delivery, matched or not, so callers cannot probe for reference existence.
type WebhookAck struct {
	OK bool `json:"ok"`
}
