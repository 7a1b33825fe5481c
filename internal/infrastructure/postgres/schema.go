package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
  id         text PRIMARY KEY,
  name       text NOT NULL,
  price      numeric(12,2) NOT NULL CHECK (price > 0),
  stock      integer NOT NULL CHECK (stock >= 0),
  active     boolean NOT NULL DEFAULT true,
  updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
  id                 text PRIMARY KEY,
  number             text NOT NULL UNIQUE,
  customer_name      text NOT NULL,
  customer_phone     text NOT NULL,
  customer_email     text NOT NULL DEFAULT '',
  ship_street        text NOT NULL,
  ship_department    text NOT NULL,
  ship_municipality  text NOT NULL,
  ship_zone          text NOT NULL,
  ship_reference     text NOT NULL DEFAULT '',
  payment_method     text NOT NULL,
  subtotal           numeric(12,2) NOT NULL,
  tax                numeric(12,2) NOT NULL,
  shipping_cost      numeric(12,2) NOT NULL,
  total              numeric(12,2) NOT NULL,
  status             text NOT NULL,
  notes              text NOT NULL DEFAULT '',
  payment_provider   text NOT NULL DEFAULT '',
  payment_session_id text NOT NULL DEFAULT '',
  payment_capture_id text NOT NULL DEFAULT '',
  payment_status     text NOT NULL,
  version            integer NOT NULL,
  created_at         timestamptz NOT NULL,
  updated_at         timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_created_idx ON orders (created_at DESC, number DESC);
CREATE INDEX IF NOT EXISTS orders_session_idx ON orders (payment_session_id) WHERE payment_session_id <> '';

CREATE TABLE IF NOT EXISTS order_lines (
  order_id     text NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
  position     integer NOT NULL,
  product_id   text NOT NULL,
  product_name text NOT NULL,
  quantity     integer NOT NULL CHECK (quantity > 0),
  unit_price   numeric(12,2) NOT NULL,
  subtotal     numeric(12,2) NOT NULL,
  PRIMARY KEY (order_id, position)
);

CREATE TABLE IF NOT EXISTS order_sequences (
  year  integer PRIMARY KEY,
  value integer NOT NULL
);`

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
