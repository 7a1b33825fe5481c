package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	dominv "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
)

type catalog struct {
	q querier
}

func (c *catalog) FindByIDs(ctx context.Context, ids []string) ([]dominv.Record, error) {
	rows, err := c.q.Query(ctx,
		`SELECT id, name, price, stock, active, updated_at FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: find products: %w", err)
	}
	defer rows.Close()

	var out []dominv.Record
	for rows.Next() {
		var r dominv.Record
		if err := rows.Scan(&r.ProductID, &r.Name, &r.Price, &r.Stock, &r.Active, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DecrementStock relies on the conditional update to serialize concurrent
// buyers of the same product on its row lock.
func (c *catalog) DecrementStock(ctx context.Context, productID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, dominv.ErrInvalidQuantity
	}
	var remaining int
	err := c.q.QueryRow(ctx, `
UPDATE products SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock >= $2
RETURNING stock`, productID, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("catalog: decrement %s: %w", productID, err)
	}

	var stock int
	err = c.q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, dominv.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: decrement %s: %w", productID, err)
	}
	return stock, dominv.ErrInsufficientStock
}

// UpsertProduct writes a catalog record; the catalog itself is managed
// elsewhere, this is used for seeding.
func (s *Store) UpsertProduct(ctx context.Context, r dominv.Record) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO products (id, name, price, stock, active, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
  stock = EXCLUDED.stock, active = EXCLUDED.active, updated_at = now()`,
		r.ProductID, r.Name, r.Price.String(), r.Stock, r.Active)
	if err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", r.ProductID, err)
	}
	return nil
}

// Stock reports the committed stock of a product.
func (s *Store) Stock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := s.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, dominv.ErrNotFound
	}
	return stock, err
}
