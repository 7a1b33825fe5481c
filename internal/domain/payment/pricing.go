package payment

import (
	"strings"

	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

// Pricing converts stored order totals into the amount a provider must charge.
type Pricing struct {
	StoreCurrency string
	// ExchangeRate is store-currency units per one provider-currency unit.
	ExchangeRate decimal.Decimal
	Tolerance    decimal.Decimal
}

// Expected returns the amount to charge in currency for an order total kept
// in the store currency, rounded to cents.
func (p Pricing) Expected(total decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || strings.EqualFold(currency, p.StoreCurrency) {
		return total.Round(2), nil
	}
	if !p.ExchangeRate.IsPositive() {
		return decimal.Zero, apperr.Validation("no exchange rate configured for %s", currency)
	}
	return total.DivRound(p.ExchangeRate, 8).Round(2), nil
}

// Matches reports whether amount is within the configured tolerance of expected.
func (p Pricing) Matches(amount, expected decimal.Decimal) bool {
	return amount.Sub(expected).Abs().LessThanOrEqual(p.Tolerance)
}
