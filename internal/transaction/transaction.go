package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
	"github.com/frahmantamala/payment-orchestration/internal/security"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RepositoryAPI is the persistence contract for transaction records.
// UpdateStatusByReference must be a single atomic conditional update (only
// PENDING rows transition) and report whether a row actually changed.
type RepositoryAPI interface {
	Create(t *transaction.Transaction) error
	GetByReference(reference string) (*transaction.Transaction, error)
	List(offset, limit int) ([]*transaction.Transaction, int64, error)
	UpdateStatusByReference(reference, status string, providerSummary json.RawMessage, providerResponse *string) (*transaction.Transaction, bool, error)
}

// ServiceAPI is what handlers and the webhook dispatcher consume.
type ServiceAPI interface {
	CreatePending(params CreatePendingParams) (*transaction.Transaction, error)
	GetByReference(reference string) (*transaction.Transaction, error)
	List(page, limit int) (*ListResult, error)
	UpdateStatusByReference(reference, status string, providerSummary map[string]any, providerResponse any) (*transaction.Transaction, bool, error)
	DecryptProviderResponse(t *transaction.Transaction) (any, error)
}

type CreatePendingParams struct {
	Reference        string
	Provider         string
	Amount           int64
	Currency         string
	Metadata         map[string]any
	ProviderSummary  map[string]any
	ProviderResponse any
}

type ListResult struct {
	Items []*transaction.Transaction
	Total int64
	Page  int
	Limit int
}

// Service owns the persisted representation of transactions. It is the only
// component that touches the field cipher: provider responses are encrypted
// before they reach the repository and decrypted on the read path.
type Service struct {
	repo   RepositoryAPI
	cipher *security.FieldCipher
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, cipher *security.FieldCipher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cipher: cipher,
		logger: logger,
	}
}

// CreatePending inserts a new PENDING transaction. A reference collision
// surfaces as ErrDuplicateReference and leaves the original row untouched.
func (s *Service) CreatePending(params CreatePendingParams) (*transaction.Transaction, error) {
	metadata, err := marshalOptional(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	summary, err := marshalOptional(params.ProviderSummary)
	if err != nil {
		return nil, fmt.Errorf("marshal provider summary: %w", err)
	}

	encrypted, err := s.cipher.EncryptValue(params.ProviderResponse)
	if err != nil {
		return nil, fmt.Errorf("encrypt provider response: %w", err)
	}

	entity := &transaction.Transaction{
		Reference:        params.Reference,
		Provider:         params.Provider,
		Amount:           params.Amount,
		Currency:         params.Currency,
		Status:           transaction.StatusPending,
		RetryCount:       0,
		Metadata:         metadata,
		ProviderSummary:  summary,
		ProviderResponse: encrypted,
	}

	if err := s.repo.Create(entity); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateReference) {
			s.logger.Warn("rejected duplicate transaction reference", "reference", params.Reference)
			return nil, apperrors.ErrDuplicateReference
		}
		s.logger.Error("failed to create transaction", "error", err, "reference", params.Reference)
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.Info("transaction created",
		"transaction_id", entity.ID,
		"reference", entity.Reference,
		"provider", entity.Provider,
		"amount", entity.Amount,
		"currency", entity.Currency)

	return entity, nil
}

func (s *Service) GetByReference(reference string) (*transaction.Transaction, error) {
	entity, err := s.repo.GetByReference(reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return entity, nil
}

// List returns a page of transactions ordered by creation time descending.
// Page is floored at 1 and limit clamped to [1, 100].
func (s *Service) List(page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	items, total, err := s.repo.List((page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return &ListResult{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// UpdateStatusByReference applies a webhook-reported status. The repository
// performs the conditional update so that concurrent duplicate deliveries
// cannot both observe PENDING: exactly one wins, the rest are no-ops that
// return the unchanged record with updated=false. An unknown or empty
// reference yields ErrTransactionNotFound.
func (s *Service) UpdateStatusByReference(reference, status string, providerSummary map[string]any, providerResponse any) (*transaction.Transaction, bool, error) {
	if reference == "" {
		return nil, false, apperrors.ErrTransactionNotFound
	}
	if !transaction.ValidStatus(status) {
		return nil, false, fmt.Errorf("invalid transaction status %q", status)
	}

	summary, err := marshalOptional(providerSummary)
	if err != nil {
		return nil, false, fmt.Errorf("marshal provider summary: %w", err)
	}

	var encrypted *string
	if providerResponse != nil {
		ciphertext, err := s.cipher.EncryptValue(providerResponse)
		if err != nil {
			return nil, false, fmt.Errorf("encrypt provider response: %w", err)
		}
		encrypted = &ciphertext
	}

	entity, updated, err := s.repo.UpdateStatusByReference(reference, status, summary, encrypted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.ErrTransactionNotFound
		}
		s.logger.Error("failed to update transaction status", "error", err, "reference", reference)
		return nil, false, fmt.Errorf("update transaction status: %w", err)
	}

	if updated {
		s.logger.Info("transaction status updated",
			"reference", reference,
			"status", status)
	} else {
		s.logger.Info("transaction status unchanged, already terminal",
			"reference", reference,
			"current_status", entity.Status,
			"reported_status", status)
	}

	return entity, updated, nil
}

// DecryptProviderResponse opens the encrypted column of a record. An
// authentication failure propagates as ErrDecryptionFailure and is never
// replaced by a plausible-looking value.
func (s *Service) DecryptProviderResponse(t *transaction.Transaction) (any, error) {
	value, err := s.cipher.DecryptValue(t.ProviderResponse)
	if err != nil {
		s.logger.Error("failed to decrypt provider response",
			"error", err,
			"reference", t.Reference)
		return nil, apperrors.ErrDecryptionFailure.WithCause(err)
	}
	return value, nil
}

func marshalOptional(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}
