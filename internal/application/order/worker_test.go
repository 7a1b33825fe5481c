package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
)

type handlerMap map[string]domoutbox.Handler

func (m handlerMap) Subscribe(name string, h domoutbox.Handler) { m[name] = h }

type recordingSink struct {
	mu   sync.Mutex
	sent []domoutbox.Event
	err  error
}

func (s *recordingSink) Send(_ context.Context, e domoutbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, e)
	return nil
}

func TestRelayWorkerSubscribesOrderEvents(t *testing.T) {
	t.Parallel()

	subs := handlerMap{}
	sink := &recordingSink{}
	NewRelayWorker(subs, sink, "kafka", nil).Start()

	for _, name := range RelayedEvents {
		if subs[name] == nil {
			t.Fatalf("no handler for %s", name)
		}
	}

	evt := domain.NewStatusChangedEvent("ORD-2025-00001", domain.StatusPending, domain.StatusConfirmed)
	if err := subs[domain.EventStatusChanged](context.Background(), evt); err != nil {
		t.Fatalf("relay error = %v", err)
	}
	if len(sink.sent) != 1 || sink.sent[0].EventName() != domain.EventStatusChanged {
		t.Fatalf("sink received %v", sink.sent)
	}
}

func TestRelayWorkerSurfacesSinkFailure(t *testing.T) {
	t.Parallel()

	subs := handlerMap{}
	broker := errors.New("broker unavailable")
	NewRelayWorker(subs, &recordingSink{err: broker}, "kafka", nil).Start()

	err := subs[domain.EventCreated](context.Background(), domain.CreatedEvent{OrderNumber: "ORD-2025-00002"})
	if !errors.Is(err, broker) {
		t.Fatalf("relay error = %v, want broker error", err)
	}
}

func TestRelayWorkerWithoutSinkIsInert(t *testing.T) {
	t.Parallel()

	subs := handlerMap{}
	NewRelayWorker(subs, nil, "kafka", nil).Start()
	if len(subs) != 0 {
		t.Fatalf("worker without sink subscribed to %d events", len(subs))
	}
}
