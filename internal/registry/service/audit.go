package service

import (
	"context"
	"log/slog"

	"certregistry/internal/registry/models"
	dErrors "certregistry/pkg/domain-errors"
	audit "certregistry/pkg/platform/audit"
	"certregistry/pkg/requestcontext"
)

// auditEmitter turns domain events into audit events. Mutation events go
// through the fail-closed publisher; a publish error aborts the unit of work.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emitCreated(ctx context.Context, ev models.CertificateCreated) error {
	return e.emit(ctx, audit.Event{
		Subject:          ev.Identity.String(),
		Action:           string(audit.EventCertificateCreated),
		FirstName:        ev.Fields.FirstName,
		LastName:         ev.Fields.LastName,
		OrganizationName: ev.Fields.OrganizationName,
		IssueDate:        ev.Fields.IssueDate,
		ExpirationDate:   ev.Fields.ExpirationDate,
	})
}

func (e *auditEmitter) emitRegistered(ctx context.Context, ev models.CertificateRegistered) error {
	return e.emit(ctx, audit.Event{
		Subject:        ev.Identity.String(),
		Action:         string(audit.EventCertificateRegistered),
		ExpirationDate: ev.ExpirationDate,
	})
}

func (e *auditEmitter) emitSuspended(ctx context.Context, ev models.CertificateSuspended) error {
	return e.emit(ctx, audit.Event{
		Timestamp: ev.SuspendedAt,
		Subject:   ev.Identity.String(),
		Action:    string(audit.EventCertificateSuspended),
	})
}

func (e *auditEmitter) emit(ctx context.Context, event audit.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Authority(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}

	if e.logger != nil {
		e.logger.InfoContext(ctx, event.Action,
			"event", event.Action,
			"identity", event.Subject,
			"actor_id", event.ActorID,
			"request_id", event.RequestID,
		)
	}
	if e.publisher == nil {
		return nil
	}
	if err := e.publisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record certificate event")
	}
	return nil
}
