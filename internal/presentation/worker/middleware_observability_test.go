package workerpresentation

import (
	"context"
	"testing"

	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
)

type recordingLogger struct {
	observability.Logger
	fields map[string]any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{Logger: observability.NopLogger(), fields: map[string]any{}}
}

func (l *recordingLogger) With(fields ...observability.Field) observability.Logger {
	next := &recordingLogger{Logger: l.Logger, fields: map[string]any{}}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

type mapSubscriber map[string]domoutbox.Handler

func (m mapSubscriber) Subscribe(name string, h domoutbox.Handler) { m[name] = h }

type keyedEvent struct{}

func (keyedEvent) EventName() string { return "order.created" }
func (keyedEvent) Key() string       { return "ORD-2025-00001" }

func TestSubscriberAttachesEventLogger(t *testing.T) {
	t.Parallel()

	inner := mapSubscriber{}
	sub := NewSubscriber(inner, newRecordingLogger(), "relay")

	var got *recordingLogger
	sub.Subscribe("order.created", func(ctx context.Context, e domoutbox.Event) error {
		got, _ = logctx.From(ctx).(*recordingLogger)
		return nil
	})

	if err := inner["order.created"](context.Background(), keyedEvent{}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got == nil {
		t.Fatal("handler context carries no logger")
	}
	for k, want := range map[string]any{"event": "order.created", "worker": "relay", "event_key": "ORD-2025-00001"} {
		if got.fields[k] != want {
			t.Errorf("field %s = %v, want %v", k, got.fields[k], want)
		}
	}
	if id, _ := got.fields["event_id"].(string); id == "" {
		t.Error("event_id not generated")
	}
	if _, ok := got.fields["trace_id"]; ok {
		t.Error("trace_id must be omitted without a span")
	}
}
