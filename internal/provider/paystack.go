package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
)

const paystackDefaultBaseURL = "https://api.paystack.co"

// SignatureHeaderPaystack carries the hex HMAC-SHA512 of the raw body.
const SignatureHeaderPaystack = "x-paystack-signature"

type PaystackConfig struct {
	SecretKey string
	BaseURL   string
}

// Paystack signs webhooks with HMAC-SHA512 over the raw body and reports
// amounts in kobo (minor units).
type Paystack struct {
	secretKey string
	baseURL   string
	client    *http.Client
	logger    *slog.Logger
}

func NewPaystack(cfg PaystackConfig, logger *slog.Logger) *Paystack {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paystackDefaultBaseURL
	}
	return &Paystack{
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (p *Paystack) Name() string {
	return transaction.ProviderPaystack
}

// VerifyWebhook recomputes the hex HMAC-SHA512 of the raw body under the
// secret key and compares it constant-time against the signature header.
// A missing header or an unconfigured secret fails closed.
func (p *Paystack) VerifyWebhook(header http.Header, rawBody []byte) bool {
	signature := header.Get(SignatureHeaderPaystack)
	if signature == "" || p.secretKey == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(rawBody)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(signature))
}

func (p *Paystack) NormalizeWebhook(payload map[string]any) NormalizedEvent {
	data := payloadData(payload)

	statusRaw := stringField(data, "status")
	if statusRaw == "" && payload != nil {
		statusRaw = stringField(payload, "event")
	}

	// kobo to naira
	var amount int64
	if v, ok := numberField(data, "amount"); ok {
		amount = roundToInt64(v / 100)
	}

	currency := stringField(data, "currency")
	if currency == "" {
		currency = defaultCurrency
	}

	return NormalizedEvent{
		Provider:  transaction.ProviderPaystack,
		Reference: stringField(data, "reference", "ref"),
		Status:    statusFromKeywords(statusRaw),
		Amount:    amount,
		Currency:  currency,
	}
}

func (p *Paystack) InitiatePayment(ctx context.Context, params InitiateParams) (*InitiateResponse, error) {
	if p.secretKey == "" {
		return nil, apperrors.ErrMisconfiguredSecret.WithDetails("PAYSTACK_SECRET_KEY is not configured")
	}

	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	// Paystack expects minor units on the wire.
	body, err := json.Marshal(map[string]any{
		"amount":   params.Amount * 100,
		"email":    params.CustomerEmail,
		"currency": params.Currency,
		"metadata": metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("paystack: marshal initiate payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("paystack: create initiate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack: initiate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		p.logger.Error("paystack initiate returned error status", "status", resp.StatusCode)
		return nil, fmt.Errorf("paystack: initiate returned status %d", resp.StatusCode)
	}

	var apiResponse struct {
		Data struct {
			Reference        string `json:"reference"`
			AuthorizationURL string `json:"authorization_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("paystack: decode initiate response: %w", err)
	}

	p.logger.Info("paystack payment initiated",
		"reference", apiResponse.Data.Reference,
		"amount", params.Amount,
		"currency", params.Currency)

	return &InitiateResponse{
		Provider:    transaction.ProviderPaystack,
		Reference:   apiResponse.Data.Reference,
		CheckoutURL: apiResponse.Data.AuthorizationURL,
	}, nil
}
