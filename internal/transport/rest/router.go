package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/payment"
	"github.com/frahmantamala/payment-orchestration/internal/transaction"
	"github.com/frahmantamala/payment-orchestration/internal/transport/middleware"
	"github.com/frahmantamala/payment-orchestration/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// RegisterAllRoutes wires the HTTP surface. The webhook endpoint stays
// outside the API-key group: providers authenticate through signatures, not
// through our keys.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, cfg *internal.Config, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, transactionHandler *transaction.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/webhooks/payment", webhookHandler.HandleWebhook)
		}

		// Key-protected routes
		r.Group(func(pr chi.Router) {
			pr.Use(middleware.APIKeyAuth(cfg.Security.APIKeyHeaderName(), cfg.Security.APIKeyList(), logger))

			if paymentHandler != nil {
				pr.Post("/payments/initiate", paymentHandler.InitiatePayment)
			}

			if transactionHandler != nil {
				pr.Route("/transactions", func(tr chi.Router) {
					tr.Get("/", transactionHandler.ListTransactions)
					tr.Get("/{reference}", transactionHandler.GetTransaction)
				})
			}
		})
	})
}
