package inventory

import "context"

// Catalog is the slice of the product catalog that order creation consumes.
// Implementations bound to a unit of work see and mutate uncommitted state.
type Catalog interface {
	// FindByIDs returns the records that exist; missing ids are simply absent.
	FindByIDs(ctx context.Context, ids []string) ([]Record, error)
	// DecrementStock atomically subtracts quantity and returns the remaining
	// stock, or ErrInsufficientStock when live stock is lower than quantity.
	DecrementStock(ctx context.Context, productID string, quantity int) (int, error)
}
