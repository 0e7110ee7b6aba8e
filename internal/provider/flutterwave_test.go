package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
	"github.com/frahmantamala/payment-orchestration/internal/provider"
)

var _ = Describe("Flutterwave", func() {
	const webhookHash = "flw-secret-hash"

	var adapter *provider.Flutterwave

	BeforeEach(func() {
		adapter = provider.NewFlutterwave(provider.FlutterwaveConfig{
			SecretKey:   "FLWSECK_TEST-xyz",
			WebhookHash: webhookHash,
		}, testLogger())
	})

	Describe("VerifyWebhook", func() {
		body := []byte(`{"event":"charge.completed","data":{"tx_ref":"txn_001"}}`)

		Context("with the configured hash", func() {
			It("should accept the delivery", func() {
				header := http.Header{}
				header.Set(provider.SignatureHeaderFlutterwave, webhookHash)

				Expect(adapter.VerifyWebhook(header, body)).To(BeTrue())
			})
		})

		Context("with a wrong hash", func() {
			It("should reject the delivery", func() {
				header := http.Header{}
				header.Set(provider.SignatureHeaderFlutterwave, "not-the-hash")

				Expect(adapter.VerifyWebhook(header, body)).To(BeFalse())
			})
		})

		Context("when the header is missing", func() {
			It("should reject the delivery", func() {
				Expect(adapter.VerifyWebhook(http.Header{}, body)).To(BeFalse())
			})
		})

		Context("when no hash is configured", func() {
			It("should fail closed", func() {
				unconfigured := provider.NewFlutterwave(provider.FlutterwaveConfig{}, testLogger())
				header := http.Header{}
				header.Set(provider.SignatureHeaderFlutterwave, webhookHash)

				Expect(unconfigured.VerifyWebhook(header, body)).To(BeFalse())
			})
		})
	})

	Describe("NormalizeWebhook", func() {
		It("should keep amounts in major units", func() {
			event := adapter.NormalizeWebhook(map[string]any{
				"event": "charge.completed",
				"data": map[string]any{
					"tx_ref":   "txn_001",
					"amount":   float64(1500),
					"status":   "successful",
					"currency": "NGN",
				},
			})

			Expect(event.Provider).To(Equal(transaction.ProviderFlutterwave))
			Expect(event.Reference).To(Equal("txn_001"))
			Expect(event.Status).To(Equal(transaction.StatusSuccess))
			Expect(event.Amount).To(Equal(int64(1500)))
			Expect(event.Currency).To(Equal("NGN"))
		})

		It("should fall back to the reference field when tx_ref is absent", func() {
			event := adapter.NormalizeWebhook(map[string]any{
				"data": map[string]any{"reference": "txn_002", "status": "failed"},
			})
			Expect(event.Reference).To(Equal("txn_002"))
			Expect(event.Status).To(Equal(transaction.StatusFailed))
		})

		It("should map cancellation statuses", func() {
			event := adapter.NormalizeWebhook(map[string]any{
				"data": map[string]any{"tx_ref": "txn_003", "status": "cancelled"},
			})
			Expect(event.Status).To(Equal(transaction.StatusCancelled))
		})

		It("should degrade a malformed payload to a pending event", func() {
			event := adapter.NormalizeWebhook(map[string]any{"unexpected": true})

			Expect(event.Reference).To(Equal(""))
			Expect(event.Status).To(Equal(transaction.StatusPending))
		})
	})

	Describe("InitiatePayment", func() {
		Context("when the API succeeds", func() {
			It("should mint a tx_ref and return the checkout link", func() {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					Expect(r.URL.Path).To(Equal("/v3/payments"))

					var payload map[string]any
					Expect(json.NewDecoder(r.Body).Decode(&payload)).To(Succeed())
					Expect(payload["amount"]).To(Equal(float64(1500))) // major units on the wire
					Expect(payload["tx_ref"]).To(HavePrefix("txn_"))

					w.Header().Set("Content-Type", "application/json")
					json.NewEncoder(w).Encode(map[string]any{
						"status": "success",
						"data": map[string]any{
							"link": "https://checkout.flutterwave.com/pay/abc",
						},
					})
				}))
				defer server.Close()

				adapter = provider.NewFlutterwave(provider.FlutterwaveConfig{
					SecretKey:   "FLWSECK_TEST-xyz",
					WebhookHash: webhookHash,
					BaseURL:     server.URL,
				}, testLogger())

				resp, err := adapter.InitiatePayment(context.Background(), provider.InitiateParams{
					Amount:        1500,
					Currency:      "NGN",
					CustomerEmail: "customer@example.com",
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Provider).To(Equal(transaction.ProviderFlutterwave))
				Expect(strings.HasPrefix(resp.Reference, "txn_")).To(BeTrue())
				Expect(resp.CheckoutURL).To(Equal("https://checkout.flutterwave.com/pay/abc"))
			})
		})

		Context("when no secret is configured", func() {
			It("should fail before any network call", func() {
				unconfigured := provider.NewFlutterwave(provider.FlutterwaveConfig{
					BaseURL: "http://127.0.0.1:1",
				}, testLogger())

				_, err := unconfigured.InitiatePayment(context.Background(), provider.InitiateParams{
					Amount:        1500,
					Currency:      "NGN",
					CustomerEmail: "customer@example.com",
				})

				Expect(err).To(MatchError(apperrors.ErrMisconfiguredSecret))
			})
		})
	})
})
