package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/core/events"
	"github.com/frahmantamala/payment-orchestration/internal/payment"
	"github.com/frahmantamala/payment-orchestration/internal/provider"
	"github.com/frahmantamala/payment-orchestration/internal/security"
	transactionpkg "github.com/frahmantamala/payment-orchestration/internal/transaction"
	transactionpostgres "github.com/frahmantamala/payment-orchestration/internal/transaction/postgres"
	"github.com/frahmantamala/payment-orchestration/internal/transport/rest"
	"github.com/frahmantamala/payment-orchestration/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Environment, config.Observability.Logging.Level, config.Observability.Logging.Format)
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	cipher := security.NewFieldCipher(config.Security.FieldEncryptionKey)
	if !cipher.Enabled() {
		appLogger.Warn("field encryption disabled: provider responses will be stored in plaintext")
	}

	transactionRepo := transactionpostgres.NewTransactionRepository(gormDB)
	transactionService := transactionpkg.NewService(transactionRepo, cipher, appLogger)

	paystack := provider.NewPaystack(provider.PaystackConfig{
		SecretKey: config.Providers.PaystackSecretKey,
		BaseURL:   config.Providers.PaystackBaseURL,
	}, appLogger)
	flutterwave := provider.NewFlutterwave(provider.FlutterwaveConfig{
		SecretKey:   config.Providers.FlutterwaveSecretKey,
		WebhookHash: config.Providers.FlutterwaveWebhookHash,
		BaseURL:     config.Providers.FlutterwaveBaseURL,
	}, appLogger)
	adapters := []provider.Adapter{paystack, flutterwave}

	eventBus := events.NewEventBus(appLogger)
	registerEventHandlers(eventBus, appLogger)

	paymentService := payment.NewService(adapters, transactionService, config.Payment.MockMode, config.Payment.DefaultProvider, appLogger)
	paymentHandler := payment.NewHandler(paymentService, appLogger)
	webhookHandler := payment.NewWebhookHandler(adapters, transactionService, eventBus, appLogger)
	transactionHandler := transactionpkg.NewHandler(transactionService, appLogger)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, config, paymentHandler, webhookHandler, transactionHandler, appLogger)

	return &Dependencies{
		Config: config,
		DB:     db,
		Router: router,
		Logger: appLogger,
	}, nil
}

func registerEventHandlers(bus *events.EventBus, appLogger *slog.Logger) {
	bus.Subscribe(events.EventTypeTransactionSucceeded, func(ctx context.Context, event events.Event) error {
		appLogger.Info("transaction succeeded", "event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
	bus.Subscribe(events.EventTypeTransactionFailed, func(ctx context.Context, event events.Event) error {
		appLogger.Info("transaction failed", "event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
