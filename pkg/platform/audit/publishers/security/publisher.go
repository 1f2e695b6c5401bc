// Package security buffers authority access failures and flushes them to the
// audit store in the background. Emit never blocks the request path.
package security

import (
	"context"
	"log/slog"
	"time"

	audit "certregistry/pkg/platform/audit"
)

const flushBatchSize = 256

type Publisher struct {
	store  audit.Store
	buffer *RingBuffer
	logger *slog.Logger
}

func New(store audit.Store, capacity int, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		buffer: NewRingBuffer(capacity),
		logger: logger,
	}
}

// Emit buffers event for the next flush.
func (p *Publisher) Emit(_ context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityWarning
	}
	p.buffer.Enqueue(event)
}

// Flush writes everything currently buffered. Events that fail to persist
// are logged and discarded.
func (p *Publisher) Flush(ctx context.Context) int {
	written := 0
	for {
		batch := p.buffer.DequeueBatch(flushBatchSize)
		if len(batch) == 0 {
			return written
		}
		for _, event := range batch {
			if err := p.store.Append(ctx, event.ToEvent()); err != nil {
				if p.logger != nil {
					p.logger.ErrorContext(ctx, "security audit write failed",
						"action", event.Action,
						"error", err,
					)
				}
				continue
			}
			written++
		}
	}
}

// Run flushes every interval until ctx ends, then flushes once more.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}
