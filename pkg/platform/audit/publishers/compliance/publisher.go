// Package compliance provides a fail-closed audit publisher for registry mutations.
//
// Emit writes synchronously and returns the store error. Callers run it in the
// same unit of work as the mutation, so a failed write aborts the mutation.
//
// Use for: certificate_created, certificate_registered, certificate_suspended
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "certregistry/pkg/platform/audit"
)

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the audit store.
// A non-nil error means the event was not recorded and the caller MUST fail.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.Subject == "" {
		return fmt.Errorf("compliance event requires Subject")
	}
	if event.Action == "" {
		return fmt.Errorf("compliance event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategoryCompliance

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"action", event.Action,
				"identity", event.Subject,
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}
	return nil
}

// Close is a no-op for the synchronous compliance publisher.
func (p *Publisher) Close() error {
	return nil
}
