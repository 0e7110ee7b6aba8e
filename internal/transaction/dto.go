package transaction

import (
	"encoding/json"
	"time"

	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
)

// TransactionView is the API representation of a record. ProviderResponse is
// only populated on the single-record read path, after decryption.
type TransactionView struct {
	ID               int64           `json:"id"`
	Reference        string          `json:"reference"`
	Provider         string          `json:"provider"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	RetryCount       int             `json:"retry_count"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	ProviderSummary  json.RawMessage `json:"provider_summary,omitempty"`
	ProviderResponse any             `json:"provider_response,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type ListTransactionsResponse struct {
	Items []*TransactionView `json:"items"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

func ToView(t *transaction.Transaction) *TransactionView {
	return &TransactionView{
		ID:              t.ID,
		Reference:       t.Reference,
		Provider:        t.Provider,
		Amount:          t.Amount,
		Currency:        t.Currency,
		Status:          t.Status,
		RetryCount:      t.RetryCount,
		Metadata:        t.Metadata,
		ProviderSummary: t.ProviderSummary,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func ToListResponse(result *ListResult) *ListTransactionsResponse {
	views := make([]*TransactionView, len(result.Items))
	for i, item := range result.Items {
		views[i] = ToView(item)
	}
	return &ListTransactionsResponse{
		Items: views,
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	}
}
