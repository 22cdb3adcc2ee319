package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        "0.0.0.0:8080",
		DatabaseURL: "postgres://localhost/store",
		Checkout: CheckoutConfig{
			Isolation:   "serializable",
			RetryBudget: 5 * time.Second,
			Currency:    "usd",
		},
		DiscountFilter: DiscountFilterConfig{Enabled: true, Refresh: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "NoDatabase", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL"},
		{name: "BadIsolation", mutate: func(c *Config) { c.Checkout.Isolation = "snapshot" }, wantErr: "isolation"},
		{name: "NegativeAttempts", mutate: func(c *Config) { c.Checkout.MaxAttempts = -1 }, wantErr: "max attempts"},
		{name: "AttemptCap", mutate: func(c *Config) { c.Checkout.MaxAttempts = 10 }},
		{name: "NoRetryBudget", mutate: func(c *Config) { c.Checkout.RetryBudget = 0 }, wantErr: "retry budget"},
		{name: "BadCurrency", mutate: func(c *Config) { c.Checkout.Currency = "XYZQ" }, wantErr: "currency"},
		{name: "FilterWithoutRefresh", mutate: func(c *Config) { c.DiscountFilter.Refresh = 0 }, wantErr: "refresh"},
		{name: "FilterDisabled", mutate: func(c *Config) {
			c.DiscountFilter = DiscountFilterConfig{}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateNormalizesCurrency(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "USD", cfg.Checkout.Currency)
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:1", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:1", cfg.Addr)
}
