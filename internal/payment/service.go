package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
	"github.com/frahmantamala/payment-orchestration/internal/provider"
	transactionpkg "github.com/frahmantamala/payment-orchestration/internal/transaction"
)

// TransactionServiceAPI is the slice of the transaction store the initiation
// path needs.
type TransactionServiceAPI interface {
	CreatePending(params transactionpkg.CreatePendingParams) (*transaction.Transaction, error)
}

// Service drives the initiate-payment path: resolve the provider adapter,
// obtain a provider-assigned reference and checkout URL, then persist the
// pending transaction that later webhook deliveries will correlate against.
type Service struct {
	adapters     map[string]provider.Adapter
	transactions TransactionServiceAPI
	mockMode     bool
	defaultName  string
	logger       *slog.Logger
}

func NewService(adapters []provider.Adapter, transactions TransactionServiceAPI, mockMode bool, defaultProvider string, logger *slog.Logger) *Service {
	byName := make(map[string]provider.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	if defaultProvider == "" {
		defaultProvider = transaction.ProviderPaystack
	}
	return &Service{
		adapters:     byName,
		transactions: transactions,
		mockMode:     mockMode,
		defaultName:  defaultProvider,
		logger:       logger,
	}
}

func (s *Service) Initiate(ctx context.Context, req *InitiatePaymentRequest) (*provider.InitiateResponse, error) {
	providerName := req.ProviderPreference
	if providerName == "" {
		providerName = s.defaultName
	}

	var response *provider.InitiateResponse
	if s.mockMode {
		reference := fmt.Sprintf("txn_mock_%s", uuid.NewString())
		response = &provider.InitiateResponse{
			Provider:    providerName,
			Reference:   reference,
			CheckoutURL: "https://example.com/mock-checkout?ref=" + reference,
		}
		s.logger.Info("mock mode: minted local payment reference", "reference", reference)
	} else {
		adapter, ok := s.adapters[providerName]
		if !ok {
			return nil, fmt.Errorf("no adapter registered for provider %s", providerName)
		}

		var err error
		response, err = adapter.InitiatePayment(ctx, provider.InitiateParams{
			Amount:        req.Amount,
			Currency:      req.Currency,
			CustomerEmail: req.Customer.Email,
			Metadata:      req.Metadata,
		})
		if err != nil {
			s.logger.Error("payment initiation failed",
				"error", err,
				"provider", providerName,
				"amount", req.Amount)
			return nil, err
		}
	}

	_, err := s.transactions.CreatePending(transactionpkg.CreatePendingParams{
		Reference: response.Reference,
		Provider:  providerName,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
		ProviderSummary: map[string]any{
			"provider":     response.Provider,
			"checkout_url": response.CheckoutURL,
		},
		ProviderResponse: response,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment initiated",
		"provider", providerName,
		"reference", response.Reference,
		"amount", req.Amount,
		"currency", req.Currency)

	return response, nil
}
