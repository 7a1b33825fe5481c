package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	dominv "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService       = "order-service"
	useCaseOrderCreate = "order.create"
	publishPeer        = "outbox"
	publishTimeout     = 300 * time.Millisecond

	DefaultMaxAttempts = 3
)

// DefaultPriceDrift is the largest relative difference between a submitted
// unit price and the catalog price that is still accepted.
var DefaultPriceDrift = decimal.RequireFromString("0.05")

type CreateOrderLine struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

type CreateOrderInput struct {
	Customer      domain.Customer
	Shipping      domain.ShippingAddress
	PaymentMethod string
	Lines         []CreateOrderLine
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	ShippingCost  decimal.Decimal
	Total         decimal.Decimal
	Notes         string
}

type CreateOrderResult struct {
	ID            string
	Number        string
	Status        domain.Status
	Total         decimal.Decimal
	PaymentMethod domain.PaymentMethod
	CreatedAt     time.Time
}

type CreateOrderConfig struct {
	MaxAttempts int
	PriceDrift  decimal.Decimal
}

// CreateOrderUseCase persists an order and decrements stock for every line in
// one unit of work.
type CreateOrderUseCase struct {
	uow         domain.UnitOfWork
	allocator   NumberAllocator
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	cfg         CreateOrderConfig
	now         clock

	in       application.Instruments
	attempts observability.Counter // order_create_attempts_total{outcome}
}

func NewCreateOrderUseCase(
	uow domain.UnitOfWork,
	allocator NumberAllocator,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	cfg CreateOrderConfig,
	tel observability.Observability,
) *CreateOrderUseCase {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PriceDrift.IsZero() {
		cfg.PriceDrift = DefaultPriceDrift
	}
	if allocator == nil {
		allocator = CounterAllocator{}
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &CreateOrderUseCase{
		uow:         uow,
		allocator:   allocator,
		idGenerator: idGen,
		publisher:   publisher,
		cfg:         cfg,
		now:         systemClock,
		in:          application.NewInstruments(tel, orderService),
		attempts:    tel.Metrics().Counter(observability.MOrderCreateAttempts),
	}
}

// Execute performs the order creation flow.
func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.String("order.payment_method", cmd.PaymentMethod),
		attribute.Int("order.lines", len(cmd.Lines)),
	)
	defer func() { run.End(err) }()

	if len(cmd.Lines) == 0 {
		run.Fail("LINES_REQUIRED")
		return nil, apperr.Validation("order must have at least one line")
	}
	for _, l := range cmd.Lines {
		if l.ProductID == "" {
			run.Fail("PRODUCT_ID_REQUIRED")
			return nil, apperr.Validation("line product id is required")
		}
		if l.Quantity <= 0 {
			run.Fail("QUANTITY_INVALID")
			return nil, apperr.Validation("line %s: quantity must be greater than zero", l.ProductID)
		}
	}
	cmd.Customer.Phone = domain.NormalizePhone(cmd.Customer.Phone)

	var (
		created *domain.Order
		stock   []dominv.StockDecrementedEvent
	)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			run.Fail("CONTEXT_CANCELED")
			return nil, err
		}

		created, stock, err = uc.createOnce(ctx, cmd)
		if err == nil {
			uc.attempts.Add(1, observability.L("outcome", "committed"))
			break
		}
		if !errors.Is(err, domain.ErrDuplicateNumber) {
			uc.attempts.Add(1, observability.L("outcome", "aborted"))
			run.FailErr(err)
			return nil, err
		}

		uc.attempts.Add(1, observability.L("outcome", "duplicate_number"))
		run.Span().AddEvent("order.number_collision", trace.WithAttributes(attribute.Int("attempt", attempt)))
		run.Log.Warn("order_number_collision", observability.F("attempt", attempt))
		if attempt >= uc.cfg.MaxAttempts {
			run.Fail("NUMBER_ALLOCATION_EXHAUSTED")
			return nil, apperr.Conflict("could not allocate a unique order number after %d attempts", attempt)
		}
	}

	run.Field("order_id", created.ID)
	run.Field("order_number", created.Number)
	run.Span().SetAttributes(
		attribute.String("order.id", created.ID),
		attribute.String("order.number", created.Number),
		attribute.String("order.status", string(created.Status)),
	)

	uc.publish(ctx, run, domain.NewCreatedEvent(created))
	for _, e := range stock {
		uc.publish(ctx, run, e)
	}

	return &CreateOrderResult{
		ID:            created.ID,
		Number:        created.Number,
		Status:        created.Status,
		Total:         created.Total,
		PaymentMethod: created.PaymentMethod,
		CreatedAt:     created.CreatedAt,
	}, nil
}

func (uc *CreateOrderUseCase) createOnce(ctx context.Context, cmd CreateOrderInput) (*domain.Order, []dominv.StockDecrementedEvent, error) {
	var (
		created *domain.Order
		events  []dominv.StockDecrementedEvent
	)
	err := uc.uow.Within(ctx, func(ctx context.Context, scope domain.Scope) error {
		events = events[:0]

		lines, err := uc.priceLines(ctx, scope.Catalog(), cmd.Lines)
		if err != nil {
			return err
		}

		o, err := domain.New(domain.Draft{
			Customer:      cmd.Customer,
			Shipping:      cmd.Shipping,
			PaymentMethod: domain.PaymentMethod(cmd.PaymentMethod),
			Lines:         lines,
			Totals: domain.Totals{
				Subtotal: cmd.Subtotal,
				Tax:      cmd.Tax,
				Shipping: cmd.ShippingCost,
				Total:    cmd.Total,
			},
			Notes: cmd.Notes,
		})
		if err != nil {
			return err
		}

		number, err := uc.allocator.Allocate(ctx, scope, uc.now().Year())
		if err != nil {
			return err
		}
		if err := o.AssignIdentity(uc.idGenerator.NewID(), number); err != nil {
			return err
		}
		if err := scope.Orders().Insert(ctx, o); err != nil {
			return err
		}

		for _, l := range o.Lines {
			remaining, err := scope.Catalog().DecrementStock(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return fmt.Errorf("order: decrement stock of %s: %w", l.ProductID, err)
			}
			events = append(events, dominv.NewStockDecrementedEvent(o.Number, l.ProductID, l.Quantity, remaining))
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, events, nil
}

// priceLines checks each line against the live catalog and snapshots the
// product name. The submitted price is kept once it is within the drift.
func (uc *CreateOrderUseCase) priceLines(ctx context.Context, catalog dominv.Catalog, in []CreateOrderLine) ([]domain.Line, error) {
	ids := make([]string, 0, len(in))
	for _, l := range in {
		ids = append(ids, l.ProductID)
	}
	records, err := catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("order: load products: %w", err)
	}
	byID := make(map[string]dominv.Record, len(records))
	for _, r := range records {
		byID[r.ProductID] = r
	}

	requested := make(map[string]int, len(in))
	lines := make([]domain.Line, 0, len(in))
	for _, l := range in {
		rec, ok := byID[l.ProductID]
		if !ok {
			return nil, apperr.NotFound("product %s not found", l.ProductID)
		}
		if !rec.Active {
			return nil, apperr.Conflict("product %s is not available", rec.ProductID)
		}
		requested[l.ProductID] += l.Quantity
		if rec.Stock < requested[l.ProductID] {
			return nil, dominv.ErrInsufficientStock
		}
		allowed := rec.Price.Mul(uc.cfg.PriceDrift)
		if l.Price.Sub(rec.Price).Abs().GreaterThan(allowed) {
			return nil, apperr.Conflict("price of product %s changed from %s to %s",
				rec.ProductID, l.Price.StringFixed(2), rec.Price.StringFixed(2))
		}
		lines = append(lines, domain.NewLine(rec.ProductID, rec.Name, l.Quantity, l.Price))
	}
	return lines, nil
}

func (uc *CreateOrderUseCase) publish(ctx context.Context, run *application.Run, e domoutbox.Event) {
	if uc.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	err := uc.publisher.Publish(pubCtx, e)
	uc.in.External(publishPeer, e.EventName(), start, err)
	if err != nil {
		run.Span().RecordError(err)
		run.Log.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.Err(err),
		)
	}
}
