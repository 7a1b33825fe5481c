package order

import (
	"context"
	"math"

	"github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
)

type Page struct {
	Number int
	Limit  int
}

// Offset is the number of rows before the page. It saturates at math.MaxInt
// rather than overflowing for very large page numbers.
func (p Page) Offset() int {
	if p.Number < 2 || p.Limit < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Limit
}

type PageResult struct {
	Orders []*Order
	Total  int
}

// Repository reads and updates orders outside the creation transaction.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByNumber(ctx context.Context, number string) (*Order, error)
	// FindBySessionID resolves an order by the checkout id a gateway issued for it.
	FindBySessionID(ctx context.Context, provider, sessionID string) (*Order, error)
	// List returns orders newest first.
	List(ctx context.Context, page Page) (PageResult, error)
	// Update persists o if its stored version still equals o.Version, then
	// increments o.Version. A mismatch yields ErrStaleVersion.
	Update(ctx context.Context, o *Order) error
}

// Writer inserts orders inside a unit of work.
type Writer interface {
	// Insert fails with ErrDuplicateNumber if the number is already taken.
	Insert(ctx context.Context, o *Order) error
	// LastNumber returns the highest order number allocated in year, or "".
	LastNumber(ctx context.Context, year int) (string, error)
}

// Sequences hands out per-year order sequence values atomically.
type Sequences interface {
	Next(ctx context.Context, year int) (int, error)
}

// Scope exposes the collaborators bound to one transaction.
type Scope interface {
	Orders() Writer
	Catalog() inventory.Catalog
	Sequences() Sequences
}

// UnitOfWork runs fn inside a single atomic transaction. Any error returned
// by fn rolls back every write made through the scope.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, scope Scope) error) error
}
