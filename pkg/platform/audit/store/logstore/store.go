// Package logstore writes audit events to the structured log. It backs the
// operations and security streams when no broker is configured.
package logstore

import (
	"context"
	"log/slog"

	audit "certregistry/pkg/platform/audit"
)

type Store struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"category", audit.AuditEvent(event.Action).Category(),
		"action", event.Action,
		"identity", event.Subject,
		"decision", event.Decision,
		"reason", event.Reason,
		"request_id", event.RequestID,
		"actor_id", event.ActorID,
		"timestamp", event.Timestamp,
	)
	return nil
}
