package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"certregistry/internal/platform/config"
	"certregistry/internal/platform/kafka"
	"certregistry/internal/platform/outbox"
	"certregistry/internal/platform/postgres"
	redisclient "certregistry/internal/platform/redis"
	"certregistry/internal/platform/sqlite"
	"certregistry/internal/registry/service"
	"certregistry/internal/registry/store"
	audit "certregistry/pkg/platform/audit"
	auditkafka "certregistry/pkg/platform/audit/store/kafka"
	"certregistry/pkg/platform/audit/store/logstore"
	auditmemory "certregistry/pkg/platform/audit/store/memory"
	auditpostgres "certregistry/pkg/platform/audit/store/postgres"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

// backend is everything that depends on the configured store: the
// certificate store, its unit of work and where audit events land.
type backend struct {
	store service.Store
	tx    service.StoreTx
	// compliance receives mutation events. For Postgres it is the outbox,
	// written in the same transaction as the certificate.
	compliance audit.Store
	// events receives verification and authority-failure events.
	events   audit.Store
	relay    *outbox.Relay
	migrator migrator
	health   func(ctx context.Context) error
	closers  []func() error
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (_ *backend, err error) {
	b := &backend{health: func(context.Context) error { return nil }}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer, err = kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error {
			producer.Close()
			return nil
		})
		if cfg.Kafka.CreateTopics {
			if err := producer.EnsureTopic(ctx, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
				return nil, err
			}
		}
		b.events = auditkafka.New(producer, cfg.Kafka.Topic)
	} else {
		b.events = logstore.New(log)
	}

	// Backends without an outbox publish compliance events directly.
	direct := b.events

	switch cfg.Store.Backend {
	case config.BackendMemory:
		b.store = store.NewInMemory()
		b.tx = service.NewShardedStoreTx(cfg.Store.TxTimeout)
		if producer != nil {
			b.compliance = direct
		} else {
			b.compliance = auditmemory.NewInMemoryStore()
		}

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		certs := store.NewPostgres(db)
		b.store, b.migrator = certs, certs
		b.tx = service.NewSQLStoreTx(db)
		b.health = db.PingContext

		outboxStore := auditpostgres.New(db)
		b.compliance = outboxStore
		if producer != nil && cfg.Outbox.Enabled {
			b.relay, err = outbox.New(outboxStore, producer, cfg.Kafka.Topic,
				outbox.WithLogger(log),
				outbox.WithMetrics(outbox.NewMetrics(reg)),
				outbox.WithBatchSize(cfg.Outbox.BatchSize),
				outbox.WithInterval(cfg.Outbox.Interval),
			)
			if err != nil {
				return nil, err
			}
		}

	case config.BackendRedis:
		client, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		b.store = store.NewRedis(client.Client)
		b.tx = service.NewShardedStoreTx(cfg.Store.TxTimeout)
		b.health = client.Health
		b.compliance = direct

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		certs := store.NewSQLite(db)
		b.store, b.migrator = certs, certs
		b.tx = service.NewSQLStoreTx(db)
		b.health = db.PingContext
		b.compliance = direct

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
	return b, nil
}

// Close releases connections in reverse order of acquisition.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("failed to close backend resource", "error", err)
		}
	}
	b.closers = nil
}
