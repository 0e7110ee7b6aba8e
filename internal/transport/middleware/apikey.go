package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/frahmantamala/payment-orchestration/internal"
)

// APIKeyAuth guards the initiation and transaction read endpoints with a
// static key set from configuration. Comparison is constant-time; an empty
// key set rejects every request rather than failing open.
func APIKeyAuth(headerName string, keys []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(headerName)

			if presented != "" {
				for _, key := range keys {
					if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.Warn("rejected request with invalid API key",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr)

			status, body := apperrors.ErrInvalidAPIKey.ToHTTPResponse()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if err := json.NewEncoder(w).Encode(body); err != nil {
				logger.Error("failed to encode auth error response", "error", err)
			}
		})
	}
}
