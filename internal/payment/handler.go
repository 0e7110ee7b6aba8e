package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
		logger:      logger,
	}
}

// InitiatePayment handles POST /api/v1/payments/initiate
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleError(w, apperrors.NewValidationError("invalid request body", apperrors.ErrCodeValidationFailed))
		return
	}

	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	response, err := h.service.Initiate(r.Context(), &req)
	if err != nil {
		h.logger.Error("InitiatePayment: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, response)
}
