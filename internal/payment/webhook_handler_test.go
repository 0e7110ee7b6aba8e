package payment_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
	"github.com/frahmantamala/payment-orchestration/internal/core/events"
	paymentPkg "github.com/frahmantamala/payment-orchestration/internal/payment"
	"github.com/frahmantamala/payment-orchestration/internal/provider"
	"github.com/frahmantamala/payment-orchestration/internal/security"
	transactionpkg "github.com/frahmantamala/payment-orchestration/internal/transaction"
)

const (
	paystackSecret  = "sk_test_webhook_secret"
	flutterwaveHash = "flw-secret-hash"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// In-memory repository honoring the conditional-update contract: only PENDING
// rows transition.
type mockTransactionRepository struct {
	transactions map[string]*transaction.Transaction
}

func newMockTransactionRepository() *mockTransactionRepository {
	return &mockTransactionRepository{
		transactions: make(map[string]*transaction.Transaction),
	}
}

func (m *mockTransactionRepository) Create(t *transaction.Transaction) error {
	if _, exists := m.transactions[t.Reference]; exists {
		return apperrors.ErrDuplicateReference
	}
	t.ID = int64(len(m.transactions) + 1)
	t.CreatedAt = time.Now()
	t.UpdatedAt = time.Now()
	m.transactions[t.Reference] = t
	return nil
}

func (m *mockTransactionRepository) GetByReference(reference string) (*transaction.Transaction, error) {
	t, exists := m.transactions[reference]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (m *mockTransactionRepository) List(offset, limit int) ([]*transaction.Transaction, int64, error) {
	var items []*transaction.Transaction
	for _, t := range m.transactions {
		items = append(items, t)
	}
	return items, int64(len(items)), nil
}

func (m *mockTransactionRepository) UpdateStatusByReference(reference, status string, providerSummary json.RawMessage, providerResponse *string) (*transaction.Transaction, bool, error) {
	t, exists := m.transactions[reference]
	if !exists {
		return nil, false, gorm.ErrRecordNotFound
	}
	if t.Status != transaction.StatusPending {
		return t, false, nil
	}
	t.Status = status
	if providerSummary != nil {
		t.ProviderSummary = providerSummary
	}
	if providerResponse != nil {
		t.ProviderResponse = *providerResponse
	}
	t.UpdatedAt = time.Now()
	return t, true, nil
}

var _ = Describe("WebhookHandler", func() {
	var (
		handler            *paymentPkg.WebhookHandler
		transactionService *transactionpkg.Service
		repo               *mockTransactionRepository
		eventBus           *events.EventBus
	)

	seedPending := func(reference string, amount int64) {
		_, err := transactionService.CreatePending(transactionpkg.CreatePendingParams{
			Reference: reference,
			Provider:  transaction.ProviderPaystack,
			Amount:    amount,
			Currency:  "NGN",
		})
		Expect(err).ToNot(HaveOccurred())
	}

	deliver := func(body []byte, sign func(http.Header)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(body))
		if sign != nil {
			sign(req.Header)
		}
		recorder := httptest.NewRecorder()
		handler.HandleWebhook(recorder, req)
		return recorder
	}

	signedPaystack := func(body []byte) *httptest.ResponseRecorder {
		return deliver(body, func(h http.Header) {
			h.Set(provider.SignatureHeaderPaystack, signBody(paystackSecret, body))
		})
	}

	BeforeEach(func() {
		repo = newMockTransactionRepository()
		cipher := security.NewFieldCipher("0123456789abcdef0123456789abcdef")
		transactionService = transactionpkg.NewService(repo, cipher, testLogger())
		eventBus = events.NewEventBus(testLogger())

		adapters := []provider.Adapter{
			provider.NewPaystack(provider.PaystackConfig{SecretKey: paystackSecret}, testLogger()),
			provider.NewFlutterwave(provider.FlutterwaveConfig{WebhookHash: flutterwaveHash}, testLogger()),
		}
		handler = paymentPkg.NewWebhookHandler(adapters, transactionService, eventBus, testLogger())
	})

	Context("with a signed Paystack delivery for a pending transaction", func() {
		It("should apply the terminal status and acknowledge", func() {
			seedPending("txn_001", 1500)

			body := []byte(`{"event":"charge.success","data":{"reference":"txn_001","amount":150000,"status":"success","currency":"NGN"}}`)
			recorder := signedPaystack(body)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var ack paymentPkg.WebhookAck
			Expect(json.Unmarshal(recorder.Body.Bytes(), &ack)).To(Succeed())
			Expect(ack.OK).To(BeTrue())

			stored, err := transactionService.GetByReference("txn_001")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(transaction.StatusSuccess))

			var summary map[string]any
			Expect(json.Unmarshal(stored.ProviderSummary, &summary)).To(Succeed())
			Expect(summary["amount"]).To(Equal(float64(1500))) // kobo converted to major units
			Expect(summary["provider"]).To(Equal(transaction.ProviderPaystack))

			// raw body encrypted at rest
			Expect(stored.ProviderResponse).ToNot(ContainSubstring("charge.success"))
			decrypted, err := transactionService.DecryptProviderResponse(stored)
			Expect(err).ToNot(HaveOccurred())
			parsed, ok := decrypted.(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(parsed["event"]).To(Equal("charge.success"))
		})
	})

	Context("with an unsigned delivery", func() {
		It("should reject with 400 and change nothing", func() {
			seedPending("txn_001", 1500)

			body := []byte(`{"event":"charge.success","data":{"reference":"txn_001","status":"success"}}`)
			recorder := deliver(body, nil)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))

			stored, err := transactionService.GetByReference("txn_001")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(transaction.StatusPending))
		})
	})

	Context("with a tampered body under a valid-looking signature", func() {
		It("should reject with 400", func() {
			seedPending("txn_001", 1500)

			body := []byte(`{"data":{"reference":"txn_001","status":"success"}}`)
			signature := signBody(paystackSecret, body)
			tampered := bytes.Replace(body, []byte("success"), []byte("cancel!"), 1)

			recorder := deliver(tampered, func(h http.Header) {
				h.Set(provider.SignatureHeaderPaystack, signature)
			})

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("with a verified delivery for an unknown reference", func() {
		It("should acknowledge without creating anything", func() {
			body := []byte(`{"data":{"reference":"txn_ghost","status":"success"}}`)
			recorder := signedPaystack(body)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var ack paymentPkg.WebhookAck
			Expect(json.Unmarshal(recorder.Body.Bytes(), &ack)).To(Succeed())
			Expect(ack.OK).To(BeTrue())

			_, err := transactionService.GetByReference("txn_ghost")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with duplicate deliveries for the same transaction", func() {
		It("should apply the first and ignore the rest", func() {
			seedPending("txn_001", 1500)

			success := []byte(`{"data":{"reference":"txn_001","status":"success"}}`)
			failed := []byte(`{"data":{"reference":"txn_001","status":"failed"}}`)

			first := signedPaystack(success)
			second := signedPaystack(failed)

			Expect(first.Code).To(Equal(http.StatusOK))
			Expect(second.Code).To(Equal(http.StatusOK))

			stored, err := transactionService.GetByReference("txn_001")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(transaction.StatusSuccess))
		})
	})

	Context("with a Flutterwave delivery", func() {
		It("should dispatch on the verif-hash header", func() {
			seedPending("txn_flw", 2000)

			body := []byte(`{"event":"charge.completed","data":{"tx_ref":"txn_flw","amount":2000,"status":"successful","currency":"NGN"}}`)
			recorder := deliver(body, func(h http.Header) {
				h.Set(provider.SignatureHeaderFlutterwave, flutterwaveHash)
			})

			Expect(recorder.Code).To(Equal(http.StatusOK))

			stored, err := transactionService.GetByReference("txn_flw")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(transaction.StatusSuccess))

			var summary map[string]any
			Expect(json.Unmarshal(stored.ProviderSummary, &summary)).To(Succeed())
			Expect(summary["amount"]).To(Equal(float64(2000))) // already major units
		})
	})

	Context("with a cancellation delivery", func() {
		It("should transition the transaction to cancelled", func() {
			seedPending("txn_001", 1500)

			body := []byte(`{"data":{"reference":"txn_001","status":"cancelled"}}`)
			recorder := signedPaystack(body)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			stored, err := transactionService.GetByReference("txn_001")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(transaction.StatusCancelled))
		})
	})

	Context("with a valid signature over a non-JSON body", func() {
		It("should acknowledge without effect", func() {
			seedPending("txn_001", 1500)

			body := []byte(`this is not json`)
			recorder := signedPaystack(body)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			stored, err := transactionService.GetByReference("txn_001")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(transaction.StatusPending))
		})
	})

	Context("with a pending status report", func() {
		It("should not transition the transaction", func() {
			seedPending("txn_001", 1500)

			body := []byte(`{"data":{"reference":"txn_001","status":"processing"}}`)
			recorder := signedPaystack(body)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			stored, err := transactionService.GetByReference("txn_001")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(transaction.StatusPending))
		})
	})
})
