package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeTransactionSucceeded = "transaction.succeeded"
	EventTypeTransactionFailed    = "transaction.failed"
)

// TransactionSucceededEvent is published when a verified webhook moves a
// pending transaction to SUCCESS.
type TransactionSucceededEvent struct {
	BaseEvent
	Reference string
	Provider  string
	Amount    int64
	Currency  string
}

func NewTransactionSucceededEvent(reference, provider string, amount int64, currency string) *TransactionSucceededEvent {
	return &TransactionSucceededEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypeTransactionSucceeded,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"reference": reference,
				"provider":  provider,
				"amount":    amount,
				"currency":  currency,
			},
		},
		Reference: reference,
		Provider:  provider,
		Amount:    amount,
		Currency:  currency,
	}
}

// TransactionFailedEvent covers both FAILED and CANCELLED terminal
// transitions; Status carries which one.
type TransactionFailedEvent struct {
	BaseEvent
	Reference string
	Provider  string
	Status    string
	Amount    int64
	Currency  string
}

func NewTransactionFailedEvent(reference, provider, status string, amount int64, currency string) *TransactionFailedEvent {
	return &TransactionFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypeTransactionFailed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"reference": reference,
				"provider":  provider,
				"status":    status,
				"amount":    amount,
				"currency":  currency,
			},
		},
		Reference: reference,
		Provider:  provider,
		Status:    status,
		Amount:    amount,
		Currency:  currency,
	}
}
