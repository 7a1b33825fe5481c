// Package config loads service settings from defaults, an optional YAML file
// and SHOP_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

const EnvPrefix = "SHOP"

type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Orders   OrdersConfig   `mapstructure:"orders"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

type ServiceConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects Postgres when URL is set; otherwise orders live in memory.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig enables the order cache and the create-order rate limit when Addr is set.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Prefix     string        `mapstructure:"prefix"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type OTelConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type OrdersConfig struct {
	NumberStrategy    string `mapstructure:"number_strategy"`
	MaxCreateAttempts int    `mapstructure:"max_create_attempts"`
	// PriceDrift is the allowed relative difference between a submitted
	// unit price and the catalog price.
	PriceDrift        string `mapstructure:"price_drift"`
	LowStockThreshold int    `mapstructure:"low_stock_threshold"`
}

type PaymentsConfig struct {
	StoreCurrency   string        `mapstructure:"store_currency"`
	ExchangeRate    string        `mapstructure:"exchange_rate"`
	AmountTolerance string        `mapstructure:"amount_tolerance"`
	Timeout         time.Duration `mapstructure:"timeout"`
	OutcomePolicy   string        `mapstructure:"outcome_policy"`
	PayPal          PayPalConfig  `mapstructure:"paypal"`
	Stripe          StripeConfig  `mapstructure:"stripe"`
}

type PayPalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	ClientID      string `mapstructure:"client_id"`
	Secret        string `mapstructure:"secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
	ReturnURL     string `mapstructure:"return_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

type StripeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

// CatalogConfig seeds products at startup (memory store) or on migrate (Postgres).
type CatalogConfig struct {
	Products []ProductConfig `mapstructure:"products"`
}

type ProductConfig struct {
	ID    string `mapstructure:"id"`
	Name  string `mapstructure:"name"`
	Price string `mapstructure:"price"`
	Stock int    `mapstructure:"stock"`
}

// Pricing holds the parsed decimal settings.
type Pricing struct {
	PriceDrift      decimal.Decimal
	ExchangeRate    decimal.Decimal
	AmountTolerance decimal.Decimal
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "guestshop")
	v.SetDefault("service.env", "dev")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_file", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 45*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "guestshop")
	v.SetDefault("redis.cache_ttl", 5*time.Minute)
	v.SetDefault("redis.rate_limit", 10)
	v.SetDefault("redis.rate_window", time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "orders.events")
	v.SetDefault("kafka.client_id", "guestshop")

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.sample_ratio", 1.0)

	v.SetDefault("orders.number_strategy", "counter")
	v.SetDefault("orders.max_create_attempts", 3)
	v.SetDefault("orders.price_drift", "0.05")
	v.SetDefault("orders.low_stock_threshold", 5)

	v.SetDefault("payments.store_currency", "GTQ")
	v.SetDefault("payments.exchange_rate", "7.8")
	v.SetDefault("payments.amount_tolerance", "0.02")
	v.SetDefault("payments.timeout", 30*time.Second)
	v.SetDefault("payments.outcome_policy", string(domorder.PolicyCompletedWins))

	v.SetDefault("payments.paypal.enabled", false)
	v.SetDefault("payments.paypal.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("payments.paypal.client_id", "")
	v.SetDefault("payments.paypal.secret", "")
	v.SetDefault("payments.paypal.webhook_secret", "")
	v.SetDefault("payments.paypal.currency", "USD")
	v.SetDefault("payments.paypal.return_url", "")
	v.SetDefault("payments.paypal.cancel_url", "")

	v.SetDefault("payments.stripe.enabled", false)
	v.SetDefault("payments.stripe.base_url", "https://api.stripe.com")
	v.SetDefault("payments.stripe.secret_key", "")
	v.SetDefault("payments.stripe.webhook_secret", "")
	v.SetDefault("payments.stripe.currency", "USD")
	v.SetDefault("payments.stripe.success_url", "")
	v.SetDefault("payments.stripe.cancel_url", "")
}

// Load reads path (when non-empty) and applies SHOP_* overrides, e.g.
// SHOP_DATABASE_URL for database.url.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both YAML lists and a comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Orders.NumberStrategy {
	case "counter", "scan":
	default:
		errs = append(errs, fmt.Errorf("orders.number_strategy must be counter or scan, got %q", c.Orders.NumberStrategy))
	}
	if c.Orders.MaxCreateAttempts < 1 {
		errs = append(errs, errors.New("orders.max_create_attempts must be at least 1"))
	}
	if !domorder.OutcomePolicy(c.Payments.OutcomePolicy).Valid() {
		errs = append(errs, fmt.Errorf("payments.outcome_policy must be %s or %s, got %q",
			domorder.PolicyCompletedWins, domorder.PolicyLastWriteWins, c.Payments.OutcomePolicy))
	}
	if c.Payments.StoreCurrency == "" {
		errs = append(errs, errors.New("payments.store_currency is required"))
	}
	if _, err := c.Pricing(); err != nil {
		errs = append(errs, err)
	}
	for i, p := range c.Catalog.Products {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("catalog.products[%d].id is required", i))
		}
		if _, err := decimal.NewFromString(p.Price); err != nil {
			errs = append(errs, fmt.Errorf("catalog.products[%d].price: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) Pricing() (Pricing, error) {
	var (
		p   Pricing
		err error
	)
	if p.PriceDrift, err = positiveDecimal("orders.price_drift", c.Orders.PriceDrift); err != nil {
		return p, err
	}
	if p.ExchangeRate, err = positiveDecimal("payments.exchange_rate", c.Payments.ExchangeRate); err != nil {
		return p, err
	}
	if p.AmountTolerance, err = positiveDecimal("payments.amount_tolerance", c.Payments.AmountTolerance); err != nil {
		return p, err
	}
	return p, nil
}

func positiveDecimal(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
