package postgres

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
	transactionpkg "github.com/frahmantamala/payment-orchestration/internal/transaction"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) transactionpkg.RepositoryAPI {
	return &TransactionRepository{
		db: db,
	}
}

func (r *TransactionRepository) Create(t *transaction.Transaction) error {
	if err := r.db.Create(t).Error; err != nil {
		if isDuplicateReference(err) {
			return apperrors.ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) GetByReference(reference string) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := r.db.Where("reference = ?", reference).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) List(offset, limit int) ([]*transaction.Transaction, int64, error) {
	var total int64
	if err := r.db.Model(&transaction.Transaction{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*transaction.Transaction
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateStatusByReference issues one conditional UPDATE restricted to PENDING
// rows and reads RowsAffected, so two near-simultaneous deliveries for the
// same reference cannot both transition the record. The current row is
// re-read afterwards regardless of outcome; gorm.ErrRecordNotFound means no
// transaction carries the reference at all.
func (r *TransactionRepository) UpdateStatusByReference(reference, status string, providerSummary json.RawMessage, providerResponse *string) (*transaction.Transaction, bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}

	if providerSummary != nil {
		updates["provider_summary"] = providerSummary
	}

	if providerResponse != nil {
		updates["provider_response_encrypted"] = *providerResponse
	}

	res := r.db.Model(&transaction.Transaction{}).
		Where("reference = ? AND status = ?", reference, transaction.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, false, res.Error
	}

	var t transaction.Transaction
	if err := r.db.Where("reference = ?", reference).First(&t).Error; err != nil {
		return nil, false, err
	}

	return &t, res.RowsAffected > 0, nil
}

func isDuplicateReference(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// fallback for drivers without error translation
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
