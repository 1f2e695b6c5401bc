// Package service implements the certificate registry: hash-addressed
// operations (Create, Register, Check, Verify, Suspend, Get) and the
// credential-addressed façade built on top of them.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/metrics"
	"certregistry/internal/registry/models"
	audit "certregistry/pkg/platform/audit"
)

const tracerName = "certregistry/internal/registry/service"

// Store persists certificates. Implementations must make CreateIfAbsent and
// Execute atomic for a single identity.
type Store interface {
	// CreateIfAbsent returns sentinel.ErrAlreadyUsed when the identity exists.
	CreateIfAbsent(ctx context.Context, cert *models.Certificate) error
	// FindByIdentity returns sentinel.ErrNotFound for unknown identities.
	FindByIdentity(ctx context.Context, id identity.Identity) (*models.Certificate, error)
	// Execute loads the record, runs validate then mutate, and persists the
	// result while holding the record. Returns sentinel.ErrNotFound for
	// unknown identities.
	Execute(ctx context.Context, id identity.Identity, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error)
}

// AuditPublisher records mutation events. A non-nil error means the event was
// not recorded.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// VerificationTracker receives best-effort verification events.
type VerificationTracker interface {
	Track(ctx context.Context, event audit.Event)
}

// Service is the certificate registry.
type Service struct {
	store   Store
	tx      StoreTx
	audit   *auditEmitter
	tracker VerificationTracker
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type serviceConfig struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
	tracker        VerificationTracker
	metrics        *metrics.Metrics
	tx             StoreTx
	tracer         trace.Tracer
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.auditPublisher = publisher
	}
}

// WithVerificationTracker records every Check as an operations event.
func WithVerificationTracker(tracker VerificationTracker) Option {
	return func(c *serviceConfig) {
		c.tracker = tracker
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithTx sets the unit of work. Defaults to an in-process sharded lock.
func WithTx(tx StoreTx) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *serviceConfig) {
		c.tracer = tracer
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("certificate store is required")
	}
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tx == nil {
		cfg.tx = NewShardedStoreTx(0)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}
	return &Service{
		store:   store,
		tx:      cfg.tx,
		audit:   newAuditEmitter(cfg.logger, cfg.auditPublisher),
		tracker: cfg.tracker,
		metrics: cfg.metrics,
		logger:  cfg.logger,
		tracer:  cfg.tracer,
	}, nil
}
