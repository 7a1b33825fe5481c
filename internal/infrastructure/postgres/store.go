// Package postgres implements the order and catalog ports on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	dominv "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Within implements domain.UnitOfWork on one database transaction.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, scope domain.Scope) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, &scope{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type scope struct {
	q querier
}

func (s *scope) Orders() domain.Writer       { return &orderWriter{q: s.q} }
func (s *scope) Catalog() dominv.Catalog     { return &catalog{q: s.q} }
func (s *scope) Sequences() domain.Sequences { return &sequences{q: s.q} }

type sequences struct {
	q querier
}

// Next bumps the year's counter row; concurrent transactions serialize on
// the row lock until the holder commits.
func (s *sequences) Next(ctx context.Context, year int) (int, error) {
	var value int
	err := s.q.QueryRow(ctx, `
INSERT INTO order_sequences (year, value) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET value = order_sequences.value + 1
RETURNING value`, year).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("postgres: next sequence %d: %w", year, err)
	}
	return value, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
