package inventory

import (
	"context"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	dominventory "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	workerService = "inventory_worker"

	DefaultLowStockThreshold = 5
)

// LowStockWorker watches committed stock decrements and warns when a
// product's remaining stock falls to the threshold or below.
type LowStockWorker struct {
	subscriber domoutbox.Subscriber
	threshold  int
	in         application.Instruments
}

func NewLowStockWorker(subscriber domoutbox.Subscriber, threshold int, tel observability.Observability) *LowStockWorker {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &LowStockWorker{
		subscriber: subscriber,
		threshold:  threshold,
		in:         application.NewInstruments(tel, workerService),
	}
}

func (w *LowStockWorker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dominventory.StockDecrementedEvent{}.EventName(), w.handleStockDecremented)
}

func (w *LowStockWorker) handleStockDecremented(ctx context.Context, e domoutbox.Event) (err error) {
	const useCase = "inventory.worker.stock_decremented"

	_, run := w.in.Begin(ctx, useCase, "StockDecremented", attribute.String("event", e.EventName()))
	defer func() { run.End(err) }()

	evt, ok := e.(dominventory.StockDecrementedEvent)
	if !ok {
		run.Outcome, run.Status = "ignored", "UNEXPECTED_EVENT"
		return nil
	}
	run.Field("product_id", evt.ProductID)
	run.Field("remaining", evt.Remaining)
	run.Span().SetAttributes(
		attribute.String("product.id", evt.ProductID),
		attribute.Int("product.remaining", evt.Remaining),
	)

	if evt.Remaining > w.threshold {
		return nil
	}
	run.Status = "LOW_STOCK"
	level := run.Log.Warn
	if evt.Remaining == 0 {
		level = run.Log.Error
	}
	level("stock_low",
		observability.F("product_id", evt.ProductID),
		observability.F("remaining", evt.Remaining),
		observability.F("threshold", w.threshold),
		observability.F("order_number", evt.OrderNumber),
	)
	return nil
}
