package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/payment-orchestration/internal/security"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// SecurityConfig holds process-wide secrets read once at startup and never
// mutated at runtime.
type SecurityConfig struct {
	// FieldEncryptionKey must derive to exactly 32 bytes (base64, hex or raw
	// 32-char string). When it does not, the field cipher stores plaintext,
	// which is only acceptable in development.
	FieldEncryptionKey string `mapstructure:"field_encryption_key"`
	APIKeyHeader       string `mapstructure:"api_key_header"`
	// APIKeys is a comma-separated list of accepted values for the API key
	// header on the initiation and transaction read endpoints.
	APIKeys string `mapstructure:"api_keys"`
}

type ProvidersConfig struct {
	PaystackSecretKey      string `mapstructure:"paystack_secret_key"`
	PaystackBaseURL        string `mapstructure:"paystack_base_url"`
	FlutterwaveSecretKey   string `mapstructure:"flutterwave_secret_key"`
	FlutterwaveBaseURL     string `mapstructure:"flutterwave_base_url"`
	FlutterwaveWebhookHash string `mapstructure:"flutterwave_webhook_hash"`
}

type PaymentConfig struct {
	// MockMode skips outbound provider calls and mints local references,
	// mirroring how the service runs without provider credentials.
	MockMode        bool   `mapstructure:"mock_mode"`
	DefaultProvider string `mapstructure:"default_provider"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the configuration from environment variables,
// used for containerized deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Environment: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 3000),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			FieldEncryptionKey: getEnv("FIELD_ENCRYPTION_KEY", ""),
			APIKeyHeader:       getEnv("API_KEY_HEADER", "x-api-key"),
			APIKeys:            getEnv("API_KEY_VALUES", ""),
		},
		Providers: ProvidersConfig{
			PaystackSecretKey:      getEnv("PAYSTACK_SECRET_KEY", ""),
			PaystackBaseURL:        getEnv("PAYSTACK_BASE_URL", ""),
			FlutterwaveSecretKey:   getEnv("FLUTTERWAVE_SECRET_KEY", ""),
			FlutterwaveBaseURL:     getEnv("FLUTTERWAVE_BASE_URL", ""),
			FlutterwaveWebhookHash: getEnv("FLW_SECRET_HASH", ""),
		},
		Payment: PaymentConfig{
			MockMode:        getEnvAsBool("PAYMENT_MOCK_MODE", false),
			DefaultProvider: getEnv("PAYMENT_DEFAULT_PROVIDER", "PAYSTACK"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(c.IsProduction()); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// Validate refuses to start a production process whose encryption key cannot
// be derived: the cipher would otherwise silently fall back to storing
// provider responses in plaintext.
func (c *SecurityConfig) Validate(production bool) error {
	if production {
		if security.DeriveKey(c.FieldEncryptionKey) == nil {
			return errors.New("field_encryption_key must derive to a 32-byte key in production")
		}
		if strings.TrimSpace(c.APIKeys) == "" {
			return errors.New("api_keys must be configured in production")
		}
	}
	return nil
}

// APIKeyList splits the configured comma-separated API keys.
func (c *SecurityConfig) APIKeyList() []string {
	var keys []string
	for _, k := range strings.Split(c.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *SecurityConfig) APIKeyHeaderName() string {
	if c.APIKeyHeader == "" {
		return "x-api-key"
	}
	return c.APIKeyHeader
}

func (c *PaymentConfig) Validate() error {
	switch c.DefaultProvider {
	case "", "PAYSTACK", "FLUTTERWAVE":
		return nil
	}
	return fmt.Errorf("unsupported default_provider %q", c.DefaultProvider)
}
