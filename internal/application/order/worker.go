package order

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// RelayWorker forwards committed order events from the in-process bus to an
// external sink. A failed send is logged and counted; the order itself is
// already committed and is never rolled back.
type RelayWorker struct {
	subscriber domoutbox.Subscriber
	sink       domoutbox.Sink
	peer       string
	in         application.Instruments
	relayed    observability.Counter // events_relayed_total{event,outcome}
}

const relayService = "order-relay"

// RelayedEvents lists the events the worker subscribes to.
var RelayedEvents = []string{
	domorder.EventCreated,
	domorder.EventStatusChanged,
	domorder.EventPaymentUpdated,
}

func NewRelayWorker(subscriber domoutbox.Subscriber, sink domoutbox.Sink, peer string, tel observability.Observability) *RelayWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &RelayWorker{
		subscriber: subscriber,
		sink:       sink,
		peer:       peer,
		in:         application.NewInstruments(tel, relayService),
		relayed:    tel.Metrics().Counter(observability.MEventsRelayed),
	}
}

func (w *RelayWorker) Start() {
	if w.subscriber == nil || w.sink == nil {
		return
	}
	for _, name := range RelayedEvents {
		w.subscriber.Subscribe(name, w.relay)
	}
}

func (w *RelayWorker) relay(ctx context.Context, e domoutbox.Event) (err error) {
	const useCase = "order.worker.relay"
	name := e.EventName()

	ctx, run := w.in.Begin(ctx, useCase, "RelayEvent", attribute.String("event", name))
	defer func() { run.End(err) }()
	if k, ok := e.(domoutbox.Keyed); ok {
		run.Field("order_number", k.Key())
		run.Span().SetAttributes(attribute.String("order.number", k.Key()))
	}

	start := time.Now()
	err = w.sink.Send(ctx, e)
	w.in.External(w.peer, "send", start, err)

	outcome := "success"
	if err != nil {
		outcome = "error"
		run.Fail("SINK_SEND_FAILED")
		err = fmt.Errorf("relay %s: %w", name, err)
	}
	w.relayed.Add(1, observability.L("event", name), observability.L("outcome", outcome))
	return err
}
