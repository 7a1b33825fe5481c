package rediscache

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

func testClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("SHOP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOP_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type countingRepo struct {
	domain.Repository
	order   *domain.Order
	reads   atomic.Int32
	updated atomic.Int32
}

func (r *countingRepo) FindByNumber(_ context.Context, number string) (*domain.Order, error) {
	r.reads.Add(1)
	if r.order == nil || r.order.Number != number {
		return nil, domain.ErrNotFound
	}
	return r.order.Clone(), nil
}

func (r *countingRepo) Update(_ context.Context, o *domain.Order) error {
	r.updated.Add(1)
	o.Version++
	r.order = o.Clone()
	return nil
}

func TestOrderCacheReadThroughAndInvalidate(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	prefix := "test-" + uuid.NewString()

	primary := &countingRepo{order: &domain.Order{
		ID: "o1", Number: "ORD-2026-00001", Status: domain.StatusPending,
		Total: decimal.RequireFromString("254.00"), Version: 1,
		Lines: []domain.Line{domain.NewLine("P1", "Coffee", 2, decimal.NewFromInt(100))},
	}}
	repo := NewOrderRepository(primary, client, time.Minute, prefix, nil)

	for i := 0; i < 2; i++ {
		o, err := repo.FindByNumber(ctx, "ORD-2026-00001")
		if err != nil {
			t.Fatalf("FindByNumber() error = %v", err)
		}
		if !o.Total.Equal(decimal.RequireFromString("254")) || len(o.Lines) != 1 {
			t.Fatalf("cached order lost data: %+v", o)
		}
	}
	if n := primary.reads.Load(); n != 1 {
		t.Fatalf("primary reads = %d, want 1", n)
	}

	o, _ := repo.FindByNumber(ctx, "ORD-2026-00001")
	if err := o.Confirm(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, o); err != nil {
		t.Fatal(err)
	}
	got, err := repo.FindByNumber(ctx, "ORD-2026-00001")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusConfirmed || got.Version != 2 {
		t.Errorf("read after update = %s v%d, want CONFIRMED v2", got.Status, got.Version)
	}
	if n := primary.reads.Load(); n != 1 {
		t.Errorf("primary reads = %d, want 1 since Update writes through", n)
	}

	if _, err := repo.FindByNumber(ctx, "ORD-2026-99999"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing order error = %v", err)
	}
}

func TestLateReadThroughCannotOverwriteNewerVersion(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	prefix := "test-" + uuid.NewString()

	stale := &domain.Order{
		ID: "o2", Number: "ORD-2026-00002", Status: domain.StatusPending,
		Total: decimal.RequireFromString("120.00"), Version: 1,
	}
	primary := &countingRepo{order: stale.Clone()}
	repo := NewOrderRepository(primary, client, time.Minute, prefix, nil)

	fresh := stale.Clone()
	if err := fresh.Confirm(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	// A reader that fetched version 1 before the update populates last.
	if err := repo.store(ctx, stale); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindByNumber(ctx, stale.Number)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusConfirmed || got.Version != 2 {
		t.Fatalf("cached order = %s v%d, want CONFIRMED v2", got.Status, got.Version)
	}
	if n := primary.reads.Load(); n != 0 {
		t.Errorf("primary reads = %d, want 0", n)
	}
}

func TestRateLimiter(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	l := NewRateLimiter(client, 2, time.Minute, "test-"+uuid.NewString())
	for i := 1; i <= 3; i++ {
		ok, retry, err := l.Allow(ctx, "203.0.113.7")
		if err != nil {
			t.Fatal(err)
		}
		if want := i <= 2; ok != want {
			t.Errorf("hit %d allowed = %v, want %v", i, ok, want)
		}
		if retry <= 0 || retry > time.Minute {
			t.Errorf("hit %d retry = %s", i, retry)
		}
	}
	if ok, _, _ := l.Allow(ctx, "198.51.100.1"); !ok {
		t.Error("limits must be per key")
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	ok, _, err := NewRateLimiter(client, 1, time.Minute, "").Allow(context.Background(), "k")
	if err == nil || !ok {
		t.Fatalf("Allow() = %v, %v; want allowed with error", ok, err)
	}
}
