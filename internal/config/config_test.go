package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Orders.NumberStrategy != "counter" || cfg.Orders.MaxCreateAttempts != 3 {
		t.Errorf("orders = %+v", cfg.Orders)
	}
	if cfg.Payments.StoreCurrency != "GTQ" || cfg.Payments.OutcomePolicy != "completed_wins" {
		t.Errorf("payments = %+v", cfg.Payments)
	}
	if cfg.Payments.Timeout != 30*time.Second {
		t.Errorf("payments.timeout = %v", cfg.Payments.Timeout)
	}
	if cfg.Database.URL != "" || cfg.Redis.Addr != "" || len(cfg.Kafka.Brokers) != 0 {
		t.Error("optional backends must default to disabled")
	}

	p, err := cfg.Pricing()
	if err != nil {
		t.Fatalf("Pricing: %v", err)
	}
	if !p.PriceDrift.Equal(decimal.RequireFromString("0.05")) || !p.AmountTolerance.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("pricing = %+v", p)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.yaml")
	yaml := `
http:
  addr: ":9090"
orders:
  number_strategy: scan
payments:
  store_currency: USD
  paypal:
    enabled: true
    client_id: file-client
catalog:
  products:
    - id: p1
      name: Coffee
      price: "45.00"
      stock: 10
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHOP_HTTP_ADDR", ":7070")
	t.Setenv("SHOP_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SHOP_PAYMENTS_PAYPAL_CLIENT_ID", "env-client")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("env must win over file, http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Orders.NumberStrategy != "scan" || cfg.Payments.StoreCurrency != "USD" {
		t.Errorf("file values not applied: %+v %+v", cfg.Orders, cfg.Payments)
	}
	if !cfg.Payments.PayPal.Enabled || cfg.Payments.PayPal.ClientID != "env-client" {
		t.Errorf("paypal = %+v", cfg.Payments.PayPal)
	}
	if got := strings.Join(cfg.Kafka.Brokers, "|"); got != "k1:9092|k2:9092" {
		t.Errorf("kafka.brokers = %q", got)
	}
	if len(cfg.Catalog.Products) != 1 || cfg.Catalog.Products[0].Stock != 10 {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := map[string]struct {
		key, value, want string
	}{
		"strategy": {"SHOP_ORDERS_NUMBER_STRATEGY", "random", "orders.number_strategy"},
		"policy":   {"SHOP_PAYMENTS_OUTCOME_POLICY", "first_wins", "payments.outcome_policy"},
		"rate":     {"SHOP_PAYMENTS_EXCHANGE_RATE", "0", "payments.exchange_rate"},
		"drift":    {"SHOP_ORDERS_PRICE_DRIFT", "abc", "orders.price_drift"},
		"attempts": {"SHOP_ORDERS_MAX_CREATE_ATTEMPTS", "0", "orders.max_create_attempts"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
