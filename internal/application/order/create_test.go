package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dominv "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NewID() string { return fmt.Sprintf("id-%d", g.n.Add(1)) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore(t *testing.T, stock int) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	rec, err := dominv.NewRecord("P1", "Coffee", dec("100"), stock)
	if err != nil {
		t.Fatal(err)
	}
	s.SeedProduct(*rec)
	return s
}

func cartInput(qty int, price string) CreateOrderInput {
	p := dec(price)
	sub := p.Mul(decimal.NewFromInt(int64(qty)))
	return CreateOrderInput{
		Customer: domain.Customer{Name: "Ana Lopez", Phone: "5551-2345"},
		Shipping: domain.ShippingAddress{
			Street: "4a Avenida 12-30", Department: "Guatemala", Municipality: "Mixco", Zone: "Zona 1",
		},
		PaymentMethod: string(domain.PaymentPayPal),
		Lines:         []CreateOrderLine{{ProductID: "P1", Quantity: qty, Price: p}},
		Subtotal:      sub,
		Tax:           dec("24"),
		ShippingCost:  dec("30"),
		Total:         sub.Add(dec("54")),
	}
}

func newCreate(store *memory.Store, alloc NumberAllocator, pub domoutbox.Publisher) *CreateOrderUseCase {
	return NewCreateOrderUseCase(store, alloc, &seqIDs{}, pub, CreateOrderConfig{}, nil)
}

func TestCreateOrderFirstOfYear(t *testing.T) {
	t.Parallel()

	store := newStore(t, 10)
	pub := &recordingPublisher{}
	uc := newCreate(store, CounterAllocator{}, pub)

	res, err := uc.Execute(context.Background(), cartInput(2, "100"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := fmt.Sprintf("ORD-%d-00001", time.Now().UTC().Year())
	if res.Number != want {
		t.Errorf("Number = %s, want %s", res.Number, want)
	}
	if res.Status != domain.StatusPending {
		t.Errorf("Status = %s, want PENDING", res.Status)
	}
	if !res.Total.Equal(dec("254")) {
		t.Errorf("Total = %s, want 254", res.Total)
	}
	if stock, _ := store.Stock("P1"); stock != 8 {
		t.Errorf("stock = %d, want 8", stock)
	}

	stored, err := store.FindByNumber(context.Background(), res.Number)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Lines[0].ProductName != "Coffee" || stored.Customer.Phone != "55512345" {
		t.Errorf("stored order = %+v", stored)
	}

	names := pub.names()
	if len(names) != 2 || names[0] != domain.EventCreated || names[1] != "inventory.stock_decremented" {
		t.Errorf("events = %v", names)
	}
}

func TestCreateOrderSequencePerStrategy(t *testing.T) {
	t.Parallel()

	for _, alloc := range []NumberAllocator{CounterAllocator{}, ScanAllocator{}} {
		store := newStore(t, 10)
		uc := newCreate(store, alloc, nil)
		uc.now = func() time.Time { return time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC) }

		var last string
		for i := 0; i < 3; i++ {
			res, err := uc.Execute(context.Background(), cartInput(1, "100"))
			if err != nil {
				t.Fatalf("%T: Execute() error = %v", alloc, err)
			}
			last = res.Number
		}
		if last != "ORD-2031-00003" {
			t.Errorf("%T: third number = %s, want ORD-2031-00003", alloc, last)
		}
	}
}

func TestCreateOrderLastUnitRace(t *testing.T) {
	t.Parallel()

	store := newStore(t, 1)
	uc := newCreate(store, CounterAllocator{}, nil)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = uc.Execute(context.Background(), cartInput(1, "100"))
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, dominv.ErrInsufficientStock):
			conflicts++
			if apperr.Reason(err) != "insufficient stock" {
				t.Errorf("reason = %q", apperr.Reason(err))
			}
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("successes = %d, conflicts = %d, want 1 and 1", ok, conflicts)
	}
	if stock, _ := store.Stock("P1"); stock != 0 {
		t.Errorf("stock = %d, want 0", stock)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   func() CreateOrderInput
		setup   func(s *memory.Store)
		wantErr error
	}{
		{
			name:    "price drift beyond five percent",
			input:   func() CreateOrderInput { return cartInput(1, "94.99") },
			wantErr: apperr.ErrConflict,
		},
		{
			name:    "insufficient stock",
			input:   func() CreateOrderInput { return cartInput(11, "100") },
			wantErr: dominv.ErrInsufficientStock,
		},
		{
			name: "unknown product",
			input: func() CreateOrderInput {
				in := cartInput(1, "100")
				in.Lines[0].ProductID = "P9"
				return in
			},
			wantErr: apperr.ErrNotFound,
		},
		{
			name:  "inactive product",
			input: func() CreateOrderInput { return cartInput(1, "100") },
			setup: func(s *memory.Store) {
				rec, _ := dominv.NewRecord("P1", "Coffee", dec("100"), 10)
				rec.Active = false
				s.SeedProduct(*rec)
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "totals mismatch",
			input: func() CreateOrderInput {
				in := cartInput(1, "100")
				in.Total = in.Total.Add(dec("1"))
				return in
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "no lines",
			input: func() CreateOrderInput {
				in := cartInput(1, "100")
				in.Lines = nil
				return in
			},
			wantErr: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newStore(t, 10)
			if tt.setup != nil {
				tt.setup(store)
			}
			_, err := newCreate(store, CounterAllocator{}, nil).Execute(context.Background(), tt.input())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if stock, _ := store.Stock("P1"); stock != 10 {
				t.Errorf("stock = %d, want untouched 10", stock)
			}
		})
	}
}

func TestCreateOrderAcceptsSmallDrift(t *testing.T) {
	t.Parallel()

	store := newStore(t, 10)
	res, err := newCreate(store, CounterAllocator{}, nil).Execute(context.Background(), cartInput(1, "104.50"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	o, _ := store.FindByNumber(context.Background(), res.Number)
	if !o.Lines[0].UnitPrice.Equal(dec("104.50")) {
		t.Errorf("UnitPrice = %s, want submitted snapshot 104.50", o.Lines[0].UnitPrice)
	}
}

// stuckAllocator returns the same number every time, colliding once it exists.
type stuckAllocator struct {
	calls  atomic.Int32
	freeAt int32
}

func (a *stuckAllocator) Allocate(ctx context.Context, scope domain.Scope, year int) (string, error) {
	n := a.calls.Add(1)
	if a.freeAt > 0 && n >= a.freeAt {
		return ScanAllocator{}.Allocate(ctx, scope, year)
	}
	return domain.FormatNumber(year, 1)
}

func TestCreateOrderRetriesDuplicateNumber(t *testing.T) {
	t.Parallel()

	store := newStore(t, 10)
	if _, err := newCreate(store, CounterAllocator{}, nil).Execute(context.Background(), cartInput(1, "100")); err != nil {
		t.Fatal(err)
	}

	alloc := &stuckAllocator{freeAt: 3}
	res, err := newCreate(store, alloc, nil).Execute(context.Background(), cartInput(1, "100"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if alloc.calls.Load() != 3 {
		t.Errorf("allocations = %d, want 3", alloc.calls.Load())
	}
	if res.Number == fmt.Sprintf("ORD-%d-00001", time.Now().UTC().Year()) {
		t.Errorf("got colliding number %s", res.Number)
	}
	if stock, _ := store.Stock("P1"); stock != 8 {
		t.Errorf("stock = %d, want 8", stock)
	}
}

func TestCreateOrderGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	store := newStore(t, 10)
	if _, err := newCreate(store, CounterAllocator{}, nil).Execute(context.Background(), cartInput(1, "100")); err != nil {
		t.Fatal(err)
	}

	alloc := &stuckAllocator{}
	_, err := newCreate(store, alloc, nil).Execute(context.Background(), cartInput(1, "100"))
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("Execute() error = %v, want conflict", err)
	}
	if alloc.calls.Load() != DefaultMaxAttempts {
		t.Errorf("allocations = %d, want %d", alloc.calls.Load(), DefaultMaxAttempts)
	}
	if stock, _ := store.Stock("P1"); stock != 9 {
		t.Errorf("stock = %d, want 9", stock)
	}
}

func TestNewAllocator(t *testing.T) {
	t.Parallel()

	if _, err := NewAllocator("scan"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewAllocator("uuid"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
