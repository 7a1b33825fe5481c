package inventory

import (
	"time"

	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = apperr.NotFound("inventory: product not found")
	ErrInvalidQuantity   = apperr.Validation("inventory: quantity must be greater than zero")
	ErrInsufficientStock = apperr.Conflict("insufficient stock")
)

// Record is the catalog's view of a product as consulted by order creation.
type Record struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	UpdatedAt time.Time
}

func NewRecord(productID, name string, price decimal.Decimal, stock int) (*Record, error) {
	if stock < 0 {
		return nil, apperr.Validation("inventory: stock must be zero or greater")
	}
	if !price.IsPositive() {
		return nil, apperr.Validation("inventory: price must be greater than zero")
	}
	if !price.Equal(price.Round(2)) {
		return nil, apperr.Validation("inventory: price %s has more than 2 decimal places", price)
	}
	return &Record{
		ProductID: productID,
		Name:      name,
		Price:     price,
		Stock:     stock,
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Deduct removes quantity units, refusing to take stock negative.
func (r *Record) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > r.Stock {
		return ErrInsufficientStock
	}
	r.Stock -= quantity
	r.touch()
	return nil
}

func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
}
