// Package outbox relays committed outbox rows to Kafka on a fixed interval.
//
// Rows are written by the postgres audit store inside the same transaction
// as the certificate change, so an event is published only when its change
// committed. Delivery is at least once: a crash between Publish and
// MarkPublished republishes the batch, and consumers dedupe on the event id
// embedded in the payload.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	auditpostgres "certregistry/pkg/platform/audit/store/postgres"
)

// Source is the outbox table.
type Source interface {
	Pending(ctx context.Context, limit int) ([]auditpostgres.Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer publishes one record and waits for the acknowledgement.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Relay moves pending outbox entries to a topic.
type Relay struct {
	source    Source
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	mu        sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock replaces the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func New(source Source, producer Producer, topic string, opts ...Option) (*Relay, error) {
	if source == nil {
		return nil, errors.New("outbox source is required")
	}
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	r := &Relay{
		source:    source,
		producer:  producer,
		topic:     topic,
		batchSize: 100,
		interval:  2 * time.Second,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RelayOnce publishes one batch in order and marks the delivered prefix.
// It stops at the first publish failure so later events never overtake an
// earlier one for the same certificate.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.source.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	delivered := make([]uuid.UUID, 0, len(entries))
	var publishErr error
	for _, e := range entries {
		if err := r.producer.Publish(ctx, r.topic, []byte(e.AggregateID), e.Payload); err != nil {
			publishErr = fmt.Errorf("publish outbox entry %s: %w", e.ID, err)
			break
		}
		delivered = append(delivered, e.ID)
	}

	if err := r.source.MarkPublished(ctx, delivered, r.now()); err != nil {
		r.observe(0, len(entries))
		return 0, fmt.Errorf("mark outbox entries published: %w", err)
	}
	r.observe(len(delivered), len(entries)-len(delivered))
	return len(delivered), publishErr
}

func (r *Relay) observe(relayed, failed int) {
	if r.metrics == nil {
		return
	}
	r.metrics.Relayed.Add(float64(relayed))
	r.metrics.Failed.Add(float64(failed))
}

// Start schedules RelayOnce every interval until Stop. Runs never overlap.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		return errors.New("outbox relay already started")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(r.tick, runCtx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("outbox-relay"),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return fmt.Errorf("schedule outbox relay: %w", err)
	}

	r.scheduler = s
	r.cancel = cancel
	r.logger.Info("starting outbox relay", "topic", r.topic, "interval", r.interval, "batch_size", r.batchSize)
	s.Start()
	return nil
}

func (r *Relay) tick(ctx context.Context) {
	n, err := r.RelayOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("outbox relay failed", "relayed", n, "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("outbox entries relayed", "count", n)
	}
}

// Stop cancels any in-flight batch and waits for the scheduler to exit.
func (r *Relay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler == nil {
		return nil
	}
	r.logger.Info("stopping outbox relay")
	r.cancel()
	err := r.scheduler.Shutdown()
	r.scheduler = nil
	r.cancel = nil
	if err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}
