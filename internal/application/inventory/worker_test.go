package inventory

import (
	"context"
	"testing"

	dominventory "github.com/Zhima-Mochi/guestshop/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
)

type handlerMap map[string]domoutbox.Handler

func (m handlerMap) Subscribe(name string, h domoutbox.Handler) { m[name] = h }

type levelLogger struct {
	observability.Logger
	warns, errors *[]string
}

func (l levelLogger) With(...observability.Field) observability.Logger { return l }
func (l levelLogger) Warn(msg string, _ ...observability.Field)        { *l.warns = append(*l.warns, msg) }
func (l levelLogger) Error(msg string, _ ...observability.Field)       { *l.errors = append(*l.errors, msg) }

type telemetry struct{ log observability.Logger }

func (t telemetry) Tracer() observability.Tracer   { return observability.NopTracer() }
func (t telemetry) Logger() observability.Logger   { return t.log }
func (t telemetry) Metrics() observability.Metrics { return observability.NopMetrics() }

func TestLowStockWorker(t *testing.T) {
	t.Parallel()

	var warns, errs []string
	tel := telemetry{log: levelLogger{Logger: observability.NopLogger(), warns: &warns, errors: &errs}}
	subs := handlerMap{}
	NewLowStockWorker(subs, 3, tel).Start()

	h := subs["inventory.stock_decremented"]
	if h == nil {
		t.Fatal("worker did not subscribe")
	}

	tests := []struct {
		remaining int
		warns     int
		errors    int
	}{
		{remaining: 10, warns: 0, errors: 0},
		{remaining: 3, warns: 1, errors: 0},
		{remaining: 0, warns: 1, errors: 1},
	}
	for _, tt := range tests {
		evt := dominventory.NewStockDecrementedEvent("ORD-2025-00001", "P1", 1, tt.remaining)
		if err := h(context.Background(), evt); err != nil {
			t.Fatalf("remaining=%d: handler error = %v", tt.remaining, err)
		}
		if len(warns) != tt.warns || len(errs) != tt.errors {
			t.Fatalf("remaining=%d: warns=%v errors=%v", tt.remaining, warns, errs)
		}
	}
}
