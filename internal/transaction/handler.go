package transaction

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/payment-orchestration/internal/transport"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	service ServiceAPI
	logger  *slog.Logger
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
		logger:      logger,
	}
}

// ListTransactions handles GET /api/v1/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultListLimit)

	result, err := h.service.List(page, limit)
	if err != nil {
		h.logger.Error("ListTransactions: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToListResponse(result))
}

// GetTransaction handles GET /api/v1/transactions/{reference}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	entity, err := h.service.GetByReference(reference)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	view := ToView(entity)

	if entity.ProviderResponse != "" {
		decrypted, err := h.service.DecryptProviderResponse(entity)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
		view.ProviderResponse = decrypted
	}

	h.WriteJSON(w, http.StatusOK, view)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
