package payment_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
	paymentPkg "github.com/frahmantamala/payment-orchestration/internal/payment"
	"github.com/frahmantamala/payment-orchestration/internal/provider"
	transactionpkg "github.com/frahmantamala/payment-orchestration/internal/transaction"
)

func TestPayment(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payment Suite")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockTransactionStore struct {
	created     []transactionpkg.CreatePendingParams
	createError error
}

func (m *mockTransactionStore) CreatePending(params transactionpkg.CreatePendingParams) (*transaction.Transaction, error) {
	if m.createError != nil {
		return nil, m.createError
	}
	m.created = append(m.created, params)
	return &transaction.Transaction{
		ID:        int64(len(m.created)),
		Reference: params.Reference,
		Provider:  params.Provider,
		Amount:    params.Amount,
		Currency:  params.Currency,
		Status:    transaction.StatusPending,
	}, nil
}

type stubAdapter struct {
	name         string
	response     *provider.InitiateResponse
	initiateErr  error
	initiated    int
	verifyResult bool
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) VerifyWebhook(_ http.Header, _ []byte) bool { return s.verifyResult }

func (s *stubAdapter) NormalizeWebhook(_ map[string]any) provider.NormalizedEvent {
	return provider.NormalizedEvent{}
}

func (s *stubAdapter) InitiatePayment(_ context.Context, _ provider.InitiateParams) (*provider.InitiateResponse, error) {
	s.initiated++
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	return s.response, nil
}

var _ = Describe("PaymentService", func() {
	var (
		store   *mockTransactionStore
		adapter *stubAdapter
		service *paymentPkg.Service
	)

	newRequest := func() *paymentPkg.InitiatePaymentRequest {
		return &paymentPkg.InitiatePaymentRequest{
			Amount:   1500,
			Currency: "NGN",
			Customer: paymentPkg.Customer{Email: "customer@example.com"},
			Metadata: map[string]any{"order_id": "ord_42"},
		}
	}

	BeforeEach(func() {
		store = &mockTransactionStore{}
		adapter = &stubAdapter{
			name: transaction.ProviderPaystack,
			response: &provider.InitiateResponse{
				Provider:    transaction.ProviderPaystack,
				Reference:   "ps_ref_123",
				CheckoutURL: "https://checkout.paystack.com/ps_ref_123",
			},
		}
		service = paymentPkg.NewService(
			[]provider.Adapter{adapter}, store, false, transaction.ProviderPaystack, testLogger())
	})

	Describe("Initiate", func() {
		Context("with a configured provider", func() {
			It("should call the adapter and persist a pending transaction", func() {
				resp, err := service.Initiate(context.Background(), newRequest())

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Reference).To(Equal("ps_ref_123"))
				Expect(resp.CheckoutURL).To(Equal("https://checkout.paystack.com/ps_ref_123"))
				Expect(adapter.initiated).To(Equal(1))

				Expect(store.created).To(HaveLen(1))
				created := store.created[0]
				Expect(created.Reference).To(Equal("ps_ref_123"))
				Expect(created.Provider).To(Equal(transaction.ProviderPaystack))
				Expect(created.Amount).To(Equal(int64(1500)))
				Expect(created.ProviderSummary["checkout_url"]).To(Equal("https://checkout.paystack.com/ps_ref_123"))
			})
		})

		Context("in mock mode", func() {
			BeforeEach(func() {
				service = paymentPkg.NewService(
					[]provider.Adapter{adapter}, store, true, transaction.ProviderPaystack, testLogger())
			})

			It("should mint a local reference without calling any adapter", func() {
				resp, err := service.Initiate(context.Background(), newRequest())

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Reference).To(HavePrefix("txn_mock_"))
				Expect(resp.CheckoutURL).To(Equal("https://example.com/mock-checkout?ref=" + resp.Reference))
				Expect(adapter.initiated).To(Equal(0))
				Expect(store.created).To(HaveLen(1))
			})
		})

		Context("when the adapter reports a misconfigured secret", func() {
			It("should propagate the error and persist nothing", func() {
				adapter.initiateErr = apperrors.ErrMisconfiguredSecret

				_, err := service.Initiate(context.Background(), newRequest())

				Expect(err).To(MatchError(apperrors.ErrMisconfiguredSecret))
				Expect(store.created).To(BeEmpty())
			})
		})

		Context("when the reference collides with an existing transaction", func() {
			It("should surface the duplicate reference conflict", func() {
				store.createError = apperrors.ErrDuplicateReference

				_, err := service.Initiate(context.Background(), newRequest())

				Expect(err).To(MatchError(apperrors.ErrDuplicateReference))
			})
		})

		Context("when no adapter is registered for the requested provider", func() {
			It("should return an error", func() {
				req := newRequest()
				req.ProviderPreference = transaction.ProviderFlutterwave

				_, err := service.Initiate(context.Background(), req)

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("no adapter registered"))
			})
		})
	})
})

var _ = Describe("InitiatePaymentRequest validation", func() {
	valid := func() *paymentPkg.InitiatePaymentRequest {
		return &paymentPkg.InitiatePaymentRequest{
			Amount:   1500,
			Currency: "NGN",
			Customer: paymentPkg.Customer{Email: "customer@example.com"},
		}
	}

	It("should accept a valid request", func() {
		Expect(valid().Validate()).To(Succeed())
	})

	It("should reject a non-positive amount", func() {
		req := valid()
		req.Amount = 0
		Expect(req.Validate()).To(HaveOccurred())
	})

	It("should reject a missing currency", func() {
		req := valid()
		req.Currency = ""
		Expect(req.Validate()).To(HaveOccurred())
	})

	It("should reject a malformed email", func() {
		req := valid()
		req.Customer.Email = "not-an-email"
		Expect(req.Validate()).To(HaveOccurred())
	})

	It("should reject an unknown provider preference", func() {
		req := valid()
		req.ProviderPreference = "STRIPE"
		Expect(req.Validate()).To(HaveOccurred())
	})

	It("should allow the provider preference to be omitted", func() {
		req := valid()
		req.ProviderPreference = ""
		Expect(req.Validate()).To(Succeed())
	})
})

var _ = Describe("mock store error passthrough", func() {
	It("keeps non-sentinel errors intact", func() {
		store := &mockTransactionStore{createError: errors.New("db down")}
		service := paymentPkg.NewService(nil, store, true, transaction.ProviderPaystack, testLogger())

		_, err := service.Initiate(context.Background(), &paymentPkg.InitiatePaymentRequest{
			Amount:   1500,
			Currency: "NGN",
			Customer: paymentPkg.Customer{Email: "customer@example.com"},
		})

		Expect(err).To(MatchError("db down"))
	})
})
