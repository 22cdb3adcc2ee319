package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"golang.org/x/text/currency"

	"github.com/xenking/storefront/internal/storage/postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL   string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	APIKeyPepper   string `usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
	Checkout       CheckoutConfig
	DiscountFilter DiscountFilterConfig
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"10" usage:"Sustained requests per second per client"`
	Burst int     `default:"30" usage:"Token bucket size"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// CheckoutConfig tunes the order commit transaction.
type CheckoutConfig struct {
	Isolation                string        `default:"serializable" usage:"Transaction isolation: serializable, repeatable-read or read-committed"`
	RetryBudget              time.Duration `default:"5s" usage:"Time a checkout keeps retrying serialization failures"`
	MaxAttempts              int           `default:"0" usage:"Optional cap on attempts per checkout, 0 means only the retry budget applies"`
	CompensateFailedPayments bool          `default:"false" usage:"Restock and release discount usage when payment fails"`
	Currency                 string        `default:"USD" usage:"ISO 4217 currency recorded on orders"`
}

// DiscountFilterConfig controls the in-memory negative cache of codes.
type DiscountFilterConfig struct {
	Enabled bool          `default:"true" usage:"Reject unknown discount codes without a database lookup"`
	Refresh time.Duration `default:"1m" usage:"Filter rebuild interval"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values aconfig cannot express with tags.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if _, err := postgres.ParseIsolation(c.Checkout.Isolation); err != nil {
		return errors.Wrap(err, "checkout isolation")
	}
	if c.Checkout.MaxAttempts < 0 {
		return errors.Errorf("checkout max attempts must not be negative, got %d", c.Checkout.MaxAttempts)
	}
	if c.Checkout.RetryBudget <= 0 {
		return errors.Errorf("checkout retry budget must be positive, got %s", c.Checkout.RetryBudget)
	}
	unit, err := currency.ParseISO(c.Checkout.Currency)
	if err != nil {
		return errors.Wrapf(err, "checkout currency %q", c.Checkout.Currency)
	}
	c.Checkout.Currency = unit.String()
	if c.DiscountFilter.Enabled && c.DiscountFilter.Refresh <= 0 {
		return errors.New("discount filter refresh interval must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
