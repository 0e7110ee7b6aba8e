package transaction

import (
	"encoding/json"
	"time"
)

const (
	ProviderPaystack    = "PAYSTACK"
	ProviderFlutterwave = "FLUTTERWAVE"
)

const (
	StatusPending   = "PENDING"
	StatusSuccess   = "SUCCESS"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Transaction is the durable record of one payment attempt. Status starts at
// PENDING and moves to exactly one terminal state; the reference is the sole
// correlation key between initiation and later webhook deliveries.
type Transaction struct {
	ID         int64  `gorm:"primaryKey"`
	Reference  string `gorm:"column:reference;not null;uniqueIndex"`
	Provider   string `gorm:"column:provider;not null"`
	Amount     int64  `gorm:"column:amount;not null"`
	Currency   string `gorm:"column:currency;not null"`
	Status     string `gorm:"column:status;default:PENDING"`
	RetryCount int    `gorm:"column:retry_count;default:0"`
	// Metadata is an opaque passthrough supplied by the initiator.
	Metadata json.RawMessage `gorm:"column:metadata;type:jsonb"`
	// ProviderSummary holds non-sensitive queryable fields in cleartext.
	ProviderSummary json.RawMessage `gorm:"column:provider_summary;type:jsonb"`
	// ProviderResponse is ciphertext; only the field cipher understands its
	// nonce:ciphertext:tag layout.
	ProviderResponse string    `gorm:"column:provider_response_encrypted;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time `gorm:"column:updated_at;default:now()"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// IsTerminal reports whether the status can no longer change.
func (t *Transaction) IsTerminal() bool {
	return t.Status != StatusPending
}

// ValidProvider reports whether p names a registered payment processor.
func ValidProvider(p string) bool {
	return p == ProviderPaystack || p == ProviderFlutterwave
}

// ValidStatus reports whether s is part of the canonical status model.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
