package order

import (
	"context"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

type IDGenerator interface {
	NewID() string
}

// NumberAllocator picks the next order number inside a creation transaction.
type NumberAllocator interface {
	Allocate(ctx context.Context, scope domain.Scope, year int) (string, error)
}

const (
	StrategyCounter = "counter"
	StrategyScan    = "scan"
)

// CounterAllocator draws from the per-year sequence row, so concurrent
// transactions never observe the same value.
type CounterAllocator struct{}

func (CounterAllocator) Allocate(ctx context.Context, scope domain.Scope, year int) (string, error) {
	seq, err := scope.Sequences().Next(ctx, year)
	if err != nil {
		return "", fmt.Errorf("order: next sequence: %w", err)
	}
	return domain.FormatNumber(year, seq)
}

// ScanAllocator increments the highest stored number of the year. Two
// concurrent transactions may pick the same number; the insert then fails
// with ErrDuplicateNumber and creation is retried.
type ScanAllocator struct{}

func (ScanAllocator) Allocate(ctx context.Context, scope domain.Scope, year int) (string, error) {
	last, err := scope.Orders().LastNumber(ctx, year)
	if err != nil {
		return "", fmt.Errorf("order: last number: %w", err)
	}
	return domain.NextNumber(year, last)
}

func NewAllocator(strategy string) (NumberAllocator, error) {
	switch strategy {
	case "", StrategyCounter:
		return CounterAllocator{}, nil
	case StrategyScan:
		return ScanAllocator{}, nil
	}
	return nil, fmt.Errorf("order: unknown number strategy %q", strategy)
}

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
