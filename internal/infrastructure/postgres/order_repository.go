package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

const orderColumns = `id, number, customer_name, customer_phone, customer_email,
  ship_street, ship_department, ship_municipality, ship_zone, ship_reference,
  payment_method, subtotal, tax, shipping_cost, total, status, notes,
  payment_provider, payment_session_id, payment_capture_id, payment_status,
  version, created_at, updated_at`

type orderWriter struct {
	q querier
}

func (w *orderWriter) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" || o.Number == "" {
		return fmt.Errorf("order repository: id and number are required")
	}
	_, err := w.q.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		o.ID, o.Number, o.Customer.Name, o.Customer.Phone, o.Customer.Email,
		o.Shipping.Street, o.Shipping.Department, o.Shipping.Municipality, o.Shipping.Zone, o.Shipping.Reference,
		string(o.PaymentMethod), o.Subtotal.String(), o.Tax.String(), o.ShippingCost.String(), o.Total.String(),
		string(o.Status), o.Notes,
		o.Payment.Provider, o.Payment.SessionID, o.Payment.CaptureID, string(o.Payment.Status),
		1, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateNumber
	}
	if err != nil {
		return fmt.Errorf("order repository: insert %s: %w", o.Number, err)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`INSERT INTO order_lines (order_id, position, product_id, product_name, quantity, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice.String(), l.Subtotal.String())
	}
	if err := w.q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("order repository: insert lines of %s: %w", o.Number, err)
	}
	o.Version = 1
	return nil
}

func (w *orderWriter) LastNumber(ctx context.Context, year int) (string, error) {
	var number string
	err := w.q.QueryRow(ctx,
		`SELECT number FROM orders WHERE number LIKE $1 ORDER BY number DESC LIMIT 1`,
		domain.NumberPrefix(year)+"%",
	).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("order repository: last number %d: %w", year, err)
	}
	return number, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOne(ctx, `WHERE id = $1`, id)
}

func (s *Store) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.findOne(ctx, `WHERE number = $1`, number)
}

func (s *Store) FindBySessionID(ctx context.Context, provider, sessionID string) (*domain.Order, error) {
	if sessionID == "" {
		return nil, domain.ErrNotFound
	}
	return s.findOne(ctx,
		`WHERE payment_session_id = $1 AND ($2 = '' OR payment_provider = $2)`,
		sessionID, provider)
}

func (s *Store) findOne(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders `+where+` LIMIT 1`, args...)
	if err != nil {
		return nil, fmt.Errorf("order repository: query: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrNotFound
	}
	if err := s.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders[0], nil
}

func (s *Store) List(ctx context.Context, page domain.Page) (domain.PageResult, error) {
	res := domain.PageResult{Orders: []*domain.Order{}}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&res.Total); err != nil {
		return res, fmt.Errorf("order repository: count: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, number DESC LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset())
	if err != nil {
		return res, fmt.Errorf("order repository: list: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return res, err
	}
	if err := s.loadLines(ctx, orders); err != nil {
		return res, err
	}
	res.Orders = orders
	return res, nil
}

// Update writes the mutable columns guarded by the version the caller read.
func (s *Store) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE orders SET status = $1, notes = $2,
  payment_provider = $3, payment_session_id = $4, payment_capture_id = $5, payment_status = $6,
  version = version + 1, updated_at = $7
WHERE id = $8 AND version = $9`,
		string(o.Status), o.Notes,
		o.Payment.Provider, o.Payment.SessionID, o.Payment.CaptureID, string(o.Payment.Status),
		o.UpdatedAt, o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("order repository: update %s: %w", o.Number, err)
	}
	if tag.RowsAffected() == 1 {
		o.Version++
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("order repository: update %s: %w", o.Number, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrStaleVersion
}

func collectOrders(rows pgx.Rows) ([]*domain.Order, error) {
	defer rows.Close()
	var out []*domain.Order
	for rows.Next() {
		var (
			o                       domain.Order
			method, status, payment string
		)
		err := rows.Scan(
			&o.ID, &o.Number, &o.Customer.Name, &o.Customer.Phone, &o.Customer.Email,
			&o.Shipping.Street, &o.Shipping.Department, &o.Shipping.Municipality, &o.Shipping.Zone, &o.Shipping.Reference,
			&method, &o.Subtotal, &o.Tax, &o.ShippingCost, &o.Total, &status, &o.Notes,
			&o.Payment.Provider, &o.Payment.SessionID, &o.Payment.CaptureID, &payment,
			&o.Version, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("order repository: scan: %w", err)
		}
		o.PaymentMethod = domain.PaymentMethod(method)
		o.Status = domain.Status(status)
		o.Payment.Status = domain.PaymentStatus(payment)
		o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order repository: rows: %w", err)
	}
	return out, nil
}

func (s *Store) loadLines(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := s.pool.Query(ctx, `
SELECT order_id, product_id, product_name, quantity, unit_price, subtotal
FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("order repository: query lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			l       domain.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return fmt.Errorf("order repository: scan line: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}
