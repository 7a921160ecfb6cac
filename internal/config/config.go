package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Inventory deduction policy values. Whether stock is consumed at the
// first partial payment or only once the receipt is fully paid is clinic
// policy, so it is configuration rather than code.
const (
	DeductOnFullPayment    = "full"
	DeductOnPartialPayment = "partial"
)

// Negative stock policy values.
const (
	NegativeStockBlock = "block"
	NegativeStockWarn  = "warn"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer         string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience       string   `mapstructure:"AUTH_AUDIENCE"`
	AuthHMACSecret     string   `mapstructure:"AUTH_HMAC_SECRET"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	PricingURL         string   `mapstructure:"PRICING_URL"`
	PricingTimeoutMS   int      `mapstructure:"PRICING_TIMEOUT_MS"`
	InventoryDeduction string   `mapstructure:"INVENTORY_DEDUCTION"`
	NegativeStock      string   `mapstructure:"NEGATIVE_STOCK"`
	MigrationsDir      string   `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PRICING_TIMEOUT_MS", 3000)
	v.SetDefault("INVENTORY_DEDUCTION", DeductOnFullPayment)
	v.SetDefault("NEGATIVE_STOCK", NegativeStockBlock)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_HMAC_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("PRICING_URL")
	v.BindEnv("PRICING_TIMEOUT_MS")
	v.BindEnv("INVENTORY_DEDUCTION")
	v.BindEnv("NEGATIVE_STOCK")
	v.BindEnv("MIGRATIONS_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; all requests act as an admin user.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PricingTimeout returns the pricing lookup timeout as a duration.
func (c *Config) PricingTimeout() time.Duration {
	return time.Duration(c.PricingTimeoutMS) * time.Millisecond
}

// Validate checks that the configuration is safe to run. Policy knobs
// must hold known values; production requires real authentication.
func (c *Config) Validate() error {
	switch c.InventoryDeduction {
	case DeductOnFullPayment, DeductOnPartialPayment:
	default:
		return fmt.Errorf("INVENTORY_DEDUCTION must be %q or %q, got %q",
			DeductOnFullPayment, DeductOnPartialPayment, c.InventoryDeduction)
	}

	switch c.NegativeStock {
	case NegativeStockBlock, NegativeStockWarn:
	default:
		return fmt.Errorf("NEGATIVE_STOCK must be %q or %q, got %q",
			NegativeStockBlock, NegativeStockWarn, c.NegativeStock)
	}

	if c.IsProduction() && c.AuthIssuer == "" && c.AuthHMACSecret == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_HMAC_SECRET must be set in production")
	}

	if c.PricingTimeoutMS <= 0 {
		return fmt.Errorf("PRICING_TIMEOUT_MS must be positive, got %d", c.PricingTimeoutMS)
	}

	return nil
}
