package provider

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
)

// NormalizedEvent is the canonical shape a provider-specific webhook payload
// is reduced to before it reaches the transaction store.
type NormalizedEvent struct {
	Provider  string
	Reference string
	Status    string
	Amount    int64
	Currency  string
}

type InitiateParams struct {
	Amount        int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]any
}

type InitiateResponse struct {
	Provider    string `json:"provider"`
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// Adapter is implemented once per payment processor. VerifyWebhook must be
// given the exact raw bytes received on the wire; signature schemes are
// byte-sensitive and a re-serialized payload will not match.
// NormalizeWebhook never fails: malformed payloads degrade to an empty
// reference, zero amount and PENDING status.
type Adapter interface {
	Name() string
	VerifyWebhook(header http.Header, rawBody []byte) bool
	NormalizeWebhook(payload map[string]any) NormalizedEvent
	InitiatePayment(ctx context.Context, params InitiateParams) (*InitiateResponse, error)
}

const defaultCurrency = "NGN"

// payloadData unwraps the conventional {"data": {...}} envelope, falling back
// to the payload itself when no data object is present.
func payloadData(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	if data, ok := payload["data"].(map[string]any); ok {
		return data
	}
	return payload
}

// statusFromKeywords maps a provider status string onto the canonical model.
// Cancellation is the strongest signal, so it is matched before success and
// failure; anything unrecognized stays PENDING.
func statusFromKeywords(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "cancel"):
		return transaction.StatusCancelled
	case strings.Contains(s, "success"):
		return transaction.StatusSuccess
	case strings.Contains(s, "fail"):
		return transaction.StatusFailed
	default:
		return transaction.StatusPending
	}
}

// stringField returns the first non-empty string among the candidate keys.
func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// numberField extracts a numeric field, tolerating JSON numbers, json.Number
// and numeric strings.
func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func roundToInt64(v float64) int64 {
	return int64(math.Round(v))
}
