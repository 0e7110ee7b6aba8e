package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/transaction"
	"github.com/frahmantamala/payment-orchestration/internal/core/events"
	"github.com/frahmantamala/payment-orchestration/internal/provider"
	"github.com/frahmantamala/payment-orchestration/internal/transport"
)

// TransactionUpdaterAPI is the slice of the transaction service the webhook
// path needs.
type TransactionUpdaterAPI interface {
	UpdateStatusByReference(reference, status string, providerSummary map[string]any, providerResponse any) (*transaction.Transaction, bool, error)
}

// WebhookHandler receives provider callbacks on a single endpoint and
// dispatches them by signature: adapters are tried in registration order and
// the first one whose verification passes owns the delivery.
type WebhookHandler struct {
	*transport.BaseHandler
	adapters     []provider.Adapter
	transactions TransactionUpdaterAPI
	eventBus     *events.EventBus
	logger       *slog.Logger
}

func NewWebhookHandler(adapters []provider.Adapter, transactions TransactionUpdaterAPI, eventBus *events.EventBus, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:  transport.NewBaseHandler(logger),
		adapters:     adapters,
		transactions: transactions,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// HandleWebhook handles POST /api/v1/webhooks/payment
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		h.HandleError(w, apperrors.ErrInvalidSignature)
		return
	}

	adapter := h.verifyingAdapter(r.Header, rawBody)
	if adapter == nil {
		h.logger.Warn("webhook rejected: no adapter verified the signature")
		h.HandleError(w, apperrors.ErrInvalidSignature)
		return
	}

	// Malformed JSON after a valid signature still gets normalized; the
	// adapter degrades it to an empty reference which acks without effect.
	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Warn("webhook payload is not valid JSON", "provider", adapter.Name(), "error", err)
	}

	event := adapter.NormalizeWebhook(payload)

	summary := map[string]any{
		"provider": event.Provider,
		"status":   event.Status,
		"amount":   event.Amount,
		"currency": event.Currency,
	}

	entity, updated, err := h.transactions.UpdateStatusByReference(
		event.Reference, event.Status, summary, json.RawMessage(rawBody))
	if err != nil {
		if errors.Is(err, apperrors.ErrTransactionNotFound) {
			// Unknown references are acknowledged so providers stop
			// retrying deliveries we will never match.
			h.logger.Warn("webhook for unknown reference",
				"provider", adapter.Name(),
				"reference", event.Reference)
			h.WriteJSON(w, http.StatusOK, WebhookAck{OK: true})
			return
		}
		h.logger.Error("failed to apply webhook",
			"error", err,
			"provider", adapter.Name(),
			"reference", event.Reference)
		h.HandleServiceError(w, err)
		return
	}

	if updated {
		h.publishTransition(entity)
	}

	h.WriteJSON(w, http.StatusOK, WebhookAck{OK: true})
}

func (h *WebhookHandler) verifyingAdapter(header http.Header, rawBody []byte) provider.Adapter {
	for _, adapter := range h.adapters {
		if adapter.VerifyWebhook(header, rawBody) {
			return adapter
		}
	}
	return nil
}

// publishTransition fans the terminal transition out on the event bus.
// Handlers run detached from the request, so acknowledging the provider never
// waits on subscribers.
func (h *WebhookHandler) publishTransition(t *transaction.Transaction) {
	if h.eventBus == nil {
		return
	}

	ctx := context.Background()
	switch t.Status {
	case transaction.StatusSuccess:
		_ = h.eventBus.Publish(ctx, events.NewTransactionSucceededEvent(
			t.Reference, t.Provider, t.Amount, t.Currency))
	case transaction.StatusFailed, transaction.StatusCancelled:
		_ = h.eventBus.Publish(ctx, events.NewTransactionFailedEvent(
			t.Reference, t.Provider, t.Status, t.Amount, t.Currency))
	}
}
