// Package memory is the in-process storage used when no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	dominv "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

// Store keeps orders, products and year counters behind one lock. A unit of
// work holds the write lock until it commits, which makes transactions
// serializable.
type Store struct {
	mu        sync.RWMutex
	orders    map[string]*domain.Order // id -> order
	byNumber  map[string]string        // number -> id
	products  map[string]*dominv.Record
	sequences map[int]int
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[string]*domain.Order),
		byNumber:  make(map[string]string),
		products:  make(map[string]*dominv.Record),
		sequences: make(map[int]int),
	}
}

// Within implements domain.UnitOfWork. Writes are staged on the transaction
// and applied only when fn returns nil.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, scope domain.Scope) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:         s,
		stock:     make(map[string]int),
		sequences: make(map[int]int),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

type tx struct {
	s         *Store
	inserted  []*domain.Order
	stock     map[string]int
	sequences map[int]int
}

func (t *tx) Orders() domain.Writer       { return t }
func (t *tx) Catalog() dominv.Catalog     { return t }
func (t *tx) Sequences() domain.Sequences { return t }

func (t *tx) Next(_ context.Context, year int) (int, error) {
	cur, ok := t.sequences[year]
	if !ok {
		cur = t.s.sequences[year]
	}
	cur++
	t.sequences[year] = cur
	return cur, nil
}

func (t *tx) commit() {
	now := time.Now().UTC()
	for _, o := range t.inserted {
		t.s.orders[o.ID] = o
		t.s.byNumber[o.Number] = o.ID
	}
	for id, remaining := range t.stock {
		if rec, ok := t.s.products[id]; ok {
			rec.Stock = remaining
			rec.UpdatedAt = now
		}
	}
	for year, seq := range t.sequences {
		t.s.sequences[year] = seq
	}
}
