package payment

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

func TestPricingExpected(t *testing.T) {
	t.Parallel()

	p := Pricing{
		StoreCurrency: "GTQ",
		ExchangeRate:  decimal.RequireFromString("7.75"),
		Tolerance:     decimal.RequireFromString("0.02"),
	}

	tests := []struct {
		name     string
		total    string
		currency string
		want     string
	}{
		{"store currency", "254", "GTQ", "254"},
		{"empty currency", "254", "", "254"},
		{"converted", "254", "USD", "32.77"},
		{"store currency any case", "100", "gtq", "100"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := p.Expected(decimal.RequireFromString(tt.total), tt.currency)
			if err != nil {
				t.Fatalf("Expected() error = %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Expected() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPricingMissingRate(t *testing.T) {
	t.Parallel()

	_, err := Pricing{StoreCurrency: "GTQ"}.Expected(decimal.NewFromInt(10), "USD")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestPricingMatches(t *testing.T) {
	t.Parallel()

	p := Pricing{Tolerance: decimal.RequireFromString("0.02")}
	expected := decimal.RequireFromString("32.77")

	if !p.Matches(decimal.RequireFromString("32.79"), expected) {
		t.Error("0.02 off must match")
	}
	if p.Matches(decimal.RequireFromString("32.80"), expected) {
		t.Error("0.03 off must not match")
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	if _, err := r.Get("paypal"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Get() error = %v, want ErrUnknownProvider", err)
	}
}
