package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes a plain error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Error("http error", "status", status, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errorResp := map[string]interface{}{
		"code":    status,
		"message": message,
	}

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		h.Logger.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes an AppError with its taxonomy status and body.
func (h *BaseHandler) HandleError(w http.ResponseWriter, appErr *apperrors.AppError) {
	status, body := appErr.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// HandleServiceError maps service-layer errors onto HTTP responses; unknown
// errors become opaque 500s so internals never leak to callers.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.HandleError(w, appErr)
		return
	}

	h.Logger.Error("unhandled service error", "error", err)
	h.HandleError(w, apperrors.NewInternalError("internal server error", err))
}
