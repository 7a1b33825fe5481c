package memory

import (
	"context"

	dominv "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
)

// SeedProduct adds or replaces a catalog record.
func (s *Store) SeedProduct(rec dominv.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := rec
	s.products[rec.ProductID] = &clone
}

// Stock reports the committed stock of a product.
func (s *Store) Stock(productID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.products[productID]
	if !ok {
		return 0, false
	}
	return rec.Stock, true
}

func (t *tx) FindByIDs(_ context.Context, ids []string) ([]dominv.Record, error) {
	out := make([]dominv.Record, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rec, ok := t.s.products[id]
		if !ok {
			continue
		}
		clone := *rec
		if remaining, staged := t.stock[id]; staged {
			clone.Stock = remaining
		}
		out = append(out, clone)
	}
	return out, nil
}

func (t *tx) DecrementStock(_ context.Context, productID string, quantity int) (int, error) {
	rec, ok := t.s.products[productID]
	if !ok {
		return 0, dominv.ErrNotFound
	}
	working := *rec
	if remaining, staged := t.stock[productID]; staged {
		working.Stock = remaining
	}
	if err := working.Deduct(quantity); err != nil {
		return working.Stock, err
	}
	t.stock[productID] = working.Stock
	return working.Stock, nil
}
