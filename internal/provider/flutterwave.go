package provider

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
)

const flutterwaveDefaultBaseURL = "https://api.flutterwave.com"

// SignatureHeaderFlutterwave carries the pre-shared webhook secret hash.
const SignatureHeaderFlutterwave = "verif-hash"

type FlutterwaveConfig struct {
	SecretKey string
	// WebhookHash is the pre-shared value Flutterwave echoes in the
	// verif-hash header; it is configured out of band, not derived from the
	// payload.
	WebhookHash string
	BaseURL     string
}

// Flutterwave authenticates webhooks with a shared-secret header and reports
// amounts directly in major units.
type Flutterwave struct {
	secretKey   string
	webhookHash string
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
}

func NewFlutterwave(cfg FlutterwaveConfig, logger *slog.Logger) *Flutterwave {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = flutterwaveDefaultBaseURL
	}
	return &Flutterwave{
		secretKey:   cfg.SecretKey,
		webhookHash: cfg.WebhookHash,
		baseURL:     baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (f *Flutterwave) Name() string {
	return transaction.ProviderFlutterwave
}

// VerifyWebhook compares the verif-hash header against the configured
// webhook hash. Missing header or unconfigured hash fails closed; the raw
// body does not participate in this provider's scheme.
func (f *Flutterwave) VerifyWebhook(header http.Header, _ []byte) bool {
	presented := header.Get(SignatureHeaderFlutterwave)
	if presented == "" || f.webhookHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(f.webhookHash)) == 1
}

func (f *Flutterwave) NormalizeWebhook(payload map[string]any) NormalizedEvent {
	data := payloadData(payload)

	statusRaw := stringField(data, "status")
	if statusRaw == "" && payload != nil {
		statusRaw = stringField(payload, "event")
	}

	// already major units
	var amount int64
	if v, ok := numberField(data, "amount"); ok {
		amount = roundToInt64(v)
	}

	currency := stringField(data, "currency")
	if currency == "" {
		currency = defaultCurrency
	}

	return NormalizedEvent{
		Provider:  transaction.ProviderFlutterwave,
		Reference: stringField(data, "tx_ref", "reference"),
		Status:    statusFromKeywords(statusRaw),
		Amount:    amount,
		Currency:  currency,
	}
}

func (f *Flutterwave) InitiatePayment(ctx context.Context, params InitiateParams) (*InitiateResponse, error) {
	if f.secretKey == "" {
		return nil, apperrors.ErrMisconfiguredSecret.WithDetails("FLUTTERWAVE_SECRET_KEY is not configured")
	}

	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	// Flutterwave does not assign the reference; the tx_ref minted here is
	// what its webhooks will later echo back.
	txRef := fmt.Sprintf("txn_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:6])

	body, err := json.Marshal(map[string]any{
		"tx_ref":   txRef,
		"amount":   params.Amount,
		"currency": params.Currency,
		"customer": map[string]any{"email": params.CustomerEmail},
		"meta":     metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("flutterwave: marshal initiate payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v3/payments", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("flutterwave: create initiate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flutterwave: initiate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		f.logger.Error("flutterwave initiate returned error status", "status", resp.StatusCode)
		return nil, fmt.Errorf("flutterwave: initiate returned status %d", resp.StatusCode)
	}

	var apiResponse struct {
		Data struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("flutterwave: decode initiate response: %w", err)
	}

	f.logger.Info("flutterwave payment initiated",
		"reference", txRef,
		"amount", params.Amount,
		"currency", params.Currency)

	return &InitiateResponse{
		Provider:    transaction.ProviderFlutterwave,
		Reference:   txRef,
		CheckoutURL: apiResponse.Data.Link,
	}, nil
}
