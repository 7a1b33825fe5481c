package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
)

// ErrClosed is returned by Publish after Stop.
var ErrClosed = errors.New("outbox: bus closed")

const componentOutbox = "outbox"

type Config struct {
	QueueSize      int
	Concurrency    int
	HandlerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	return c
}

// Bus fans committed domain events out to in-process subscribers. It is not
// durable: events still queued when the process dies are lost.
type Bus struct {
	cfg Config
	log observability.Logger

	mu      sync.RWMutex
	subs    map[string][]domoutbox.Handler
	closed  bool
	started bool

	queue    chan domoutbox.Event
	stopping chan struct{}
	sending  sync.WaitGroup
	done     chan struct{}
}

func NewBus(cfg Config, logger observability.Logger) *Bus {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bus{
		cfg:      cfg,
		log:      logger.With(observability.F("component", componentOutbox)),
		subs:     make(map[string][]domoutbox.Handler),
		queue:    make(chan domoutbox.Event, cfg.QueueSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

// Start launches the dispatch loop. Handlers run on a context detached from
// ctx's cancellation so Stop can drain the queue.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	go b.dispatchLoop(context.WithoutCancel(ctx))
	logctx.FromOr(ctx, b.log).Info("event_bus_started",
		observability.F("queue_size", b.cfg.QueueSize),
		observability.F("concurrency", b.cfg.Concurrency),
	)
}

// Stop rejects new events and waits for queued ones to be dispatched or for
// ctx to expire. Publishers blocked on a full queue return ErrClosed.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	started := b.started
	b.mu.Unlock()

	close(b.stopping)
	b.sending.Wait()
	close(b.queue)
	if !started {
		close(b.done)
	}

	logger := logctx.FromOr(ctx, b.log)
	select {
	case <-b.done:
		logger.Info("event_bus_stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("event_bus_stop_timeout",
			observability.F("pending", len(b.queue)),
		)
		return ctx.Err()
	}
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.sending.Add(1)
	b.mu.RUnlock()
	defer b.sending.Done()

	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case b.queue <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-b.stopping:
		logger.Warn("event_enqueue_aborted", observability.Err(ErrClosed))
		return ErrClosed
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for e := range b.queue {
		b.fanout(ctx, e)
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	sem := make(chan struct{}, b.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		h := h
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
			defer cancel()
			hctx = logctx.With(hctx, logger)
			if err := h(hctx, e); err != nil {
				logger.Warn("event_handler_error", observability.Err(err))
			}
		}()
	}

	wg.Wait()
	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}
