package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

func (t *tx) Insert(_ context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" || o.Number == "" {
		return fmt.Errorf("order repository: id and number are required")
	}
	if _, exists := t.s.byNumber[o.Number]; exists {
		return domain.ErrDuplicateNumber
	}
	for _, p := range t.inserted {
		if p.Number == o.Number {
			return domain.ErrDuplicateNumber
		}
	}
	o.Version = 1
	t.inserted = append(t.inserted, cloneOrder(o))
	return nil
}

func (t *tx) LastNumber(_ context.Context, year int) (string, error) {
	prefix := domain.NumberPrefix(year)
	last := ""
	consider := func(n string) {
		// Numbers of one year share a fixed width, so string order is numeric order.
		if strings.HasPrefix(n, prefix) && n > last {
			last = n
		}
	}
	for n := range t.s.byNumber {
		consider(n)
	}
	for _, o := range t.inserted {
		consider(o.Number)
	}
	return last, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) FindByNumber(_ context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNumber[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

func (s *Store) FindBySessionID(_ context.Context, provider, sessionID string) (*domain.Order, error) {
	if sessionID == "" {
		return nil, domain.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.Payment.SessionID == sessionID && (provider == "" || o.Payment.Provider == provider) {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) List(_ context.Context, page domain.Page) (domain.PageResult, error) {
	s.mu.RLock()
	all := make([]*domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, o)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Number > all[j].Number
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	res := domain.PageResult{Total: len(all), Orders: []*domain.Order{}}
	from := page.Offset()
	if from < 0 || from >= len(all) {
		return res, nil
	}
	to := from + page.Limit
	if to > len(all) || to < from {
		to = len(all)
	}
	for _, o := range all[from:to] {
		res.Orders = append(res.Orders, cloneOrder(o))
	}
	return res, nil
}

func (s *Store) Update(_ context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.orders[o.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Version != o.Version {
		return domain.ErrStaleVersion
	}
	o.Version++
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	if order == nil {
		return nil
	}
	return order.Clone()
}
