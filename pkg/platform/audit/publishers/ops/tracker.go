// Package ops records high-volume operational events (verifications) without
// ever blocking or failing the caller. Events are sampled, buffered, and
// written by a background worker; when the buffer is full or the store keeps
// failing, events are dropped and counted.
package ops

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "certregistry/pkg/platform/audit"
	"certregistry/pkg/platform/audit/worker"
)

const defaultBufferSize = 1024

// Tracker is a fire-and-forget audit sink.
type Tracker struct {
	store   audit.Store
	sampler *Sampler
	breaker *CircuitBreaker
	metrics *Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan audit.Event
	done   chan struct{}
}

type Option func(*Tracker)

func WithSampler(s *Sampler) Option {
	return func(t *Tracker) { t.sampler = s }
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(t *Tracker) { t.breaker = cb }
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithBufferSize sets the number of events held while the worker catches up.
func WithBufferSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.inbox = make(chan audit.Event, n)
		}
	}
}

// NewTracker starts the background worker. Call Close to drain and stop it.
func NewTracker(store audit.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		sampler: NewSampler(1),
		breaker: NewCircuitBreaker(5, time.Minute),
		inbox:   make(chan audit.Event, defaultBufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	w := worker.NewWorker(storeFunc(t.persist), t.inbox,
		worker.WithErrorHandler(func(ctx context.Context, event audit.Event, err error) {
			if t.logger != nil {
				t.logger.WarnContext(ctx, "ops audit write failed",
					"action", event.Action,
					"identity", event.Subject,
					"error", err,
				)
			}
		}),
	)
	go func() {
		defer close(t.done)
		_ = w.Run(context.Background())
	}()
	return t
}

// Track queues event for persistence. It never blocks.
func (t *Tracker) Track(_ context.Context, event audit.Event) {
	if !t.sampler.ShouldSample(event.Action) {
		if t.metrics != nil {
			t.metrics.IncSampled()
		}
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategoryOperations

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.inbox <- event:
	default:
		if t.metrics != nil {
			t.metrics.IncBufferFull()
		}
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.inbox)
	}
	t.mu.Unlock()
	<-t.done
	return nil
}

func (t *Tracker) persist(ctx context.Context, event audit.Event) error {
	if !t.breaker.Allow() {
		if t.metrics != nil {
			t.metrics.IncCircuitBreakerDropped()
		}
		return nil
	}
	err := t.store.Append(ctx, event)
	if err != nil {
		t.breaker.RecordFailure()
		if t.metrics != nil {
			t.metrics.IncPersistFailures()
		}
	} else {
		t.breaker.RecordSuccess()
		if t.metrics != nil {
			t.metrics.IncTracked()
		}
	}
	if t.metrics != nil {
		t.metrics.SetCircuitBreakerState(t.breaker.IsOpen())
	}
	return err
}

type storeFunc func(ctx context.Context, event audit.Event) error

func (f storeFunc) Append(ctx context.Context, event audit.Event) error {
	return f(ctx, event)
}
