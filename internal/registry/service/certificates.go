package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
	dErrors "certregistry/pkg/domain-errors"
	audit "certregistry/pkg/platform/audit"
	"certregistry/pkg/platform/sentinel"
	"certregistry/pkg/requestcontext"
)

// Create derives the identity of f and stores an active certificate for it.
// The record and its certificate_created event are written in one unit of
// work. An existing identity is rejected with models.ErrDuplicateCertificate.
func (s *Service) Create(ctx context.Context, f identity.Fields) (*models.Certificate, error) {
	ctx, span := s.startSpan(ctx, "Create")
	defer span.End()
	defer s.observe("create", time.Now())

	cert, err := models.NewCertificate(f, requestcontext.Now(ctx))
	if err != nil {
		return nil, s.fail(span, toValidation(err))
	}
	span.SetAttributes(attribute.String("certificate.identity", cert.Identity.String()))

	err = s.tx.RunInTx(ctx, cert.Identity, func(txCtx context.Context) error {
		if err := s.store.CreateIfAbsent(txCtx, cert); err != nil {
			return s.wrapCreateErr(err)
		}
		return s.audit.emitCreated(txCtx, models.CertificateCreated{
			Identity: cert.Identity,
			Fields:   f,
		})
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	if s.metrics != nil {
		s.metrics.IncCreated()
	}
	return cert, nil
}

// Register stores an active certificate for a precomputed identity. The
// record carries no credential fields, so it can only be reached by hash.
func (s *Service) Register(ctx context.Context, id identity.Identity, expirationDate int64) (*models.Certificate, error) {
	ctx, span := s.startSpan(ctx, "Register", attribute.String("certificate.identity", id.String()))
	defer span.End()
	defer s.observe("register", time.Now())

	cert, err := models.NewRegistration(id, expirationDate, requestcontext.Now(ctx))
	if err != nil {
		return nil, s.fail(span, toValidation(err))
	}

	err = s.tx.RunInTx(ctx, id, func(txCtx context.Context) error {
		if err := s.store.CreateIfAbsent(txCtx, cert); err != nil {
			return s.wrapCreateErr(err)
		}
		return s.audit.emitRegistered(txCtx, models.CertificateRegistered{
			Identity:       id,
			ExpirationDate: expirationDate,
		})
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	if s.metrics != nil {
		s.metrics.IncRegistered()
	}
	return cert, nil
}

// Check reports whether id is valid at the request time and why. Unknown
// identities yield ReasonNotFound; only a store failure returns an error.
func (s *Service) Check(ctx context.Context, id identity.Identity) (models.Verification, error) {
	ctx, span := s.startSpan(ctx, "Check", attribute.String("certificate.identity", id.String()))
	defer span.End()
	defer s.observe("check", time.Now())

	var result models.Verification
	cert, err := s.store.FindByIdentity(ctx, id)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		result = models.NotFound(id)
	case err != nil:
		return models.Verification{Identity: id, Reason: models.ReasonNotFound},
			s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate"))
	default:
		result = cert.Check(requestcontext.Now(ctx))
	}

	span.SetAttributes(
		attribute.Bool("certificate.valid", result.Valid),
		attribute.String("certificate.reason", string(result.Reason)),
	)
	s.trackVerification(ctx, result)
	return result, nil
}

// Verify is Check reduced to its boolean outcome.
func (s *Service) Verify(ctx context.Context, id identity.Identity) (bool, error) {
	result, err := s.Check(ctx, id)
	if err != nil {
		return false, err
	}
	return result.Valid, nil
}

// Suspend moves the certificate to suspended. Suspending a suspended
// certificate succeeds without change and emits no event.
func (s *Service) Suspend(ctx context.Context, id identity.Identity) (*models.Certificate, error) {
	ctx, span := s.startSpan(ctx, "Suspend", attribute.String("certificate.identity", id.String()))
	defer span.End()
	defer s.observe("suspend", time.Now())

	now := requestcontext.Now(ctx)
	var (
		cert         *models.Certificate
		transitioned bool
	)
	err := s.tx.RunInTx(ctx, id, func(txCtx context.Context) error {
		updated, err := s.store.Execute(txCtx, id,
			func(*models.Certificate) error { return nil },
			func(c *models.Certificate) {
				transitioned = c.ApplySuspension(now)
			},
		)
		if err != nil {
			return wrapCertificateErr(err)
		}
		cert = updated
		if !transitioned {
			return nil
		}
		return s.audit.emitSuspended(txCtx, models.CertificateSuspended{
			Identity:    id,
			SuspendedAt: now,
		})
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(attribute.Bool("certificate.transitioned", transitioned))
	if transitioned && s.metrics != nil {
		s.metrics.IncSuspended()
	}
	return cert, nil
}

// Get returns the stored certificate for id.
func (s *Service) Get(ctx context.Context, id identity.Identity) (*models.Certificate, error) {
	ctx, span := s.startSpan(ctx, "Get", attribute.String("certificate.identity", id.String()))
	defer span.End()
	defer s.observe("get", time.Now())

	cert, err := s.store.FindByIdentity(ctx, id)
	if err != nil {
		return nil, s.fail(span, wrapCertificateErr(err))
	}
	return cert, nil
}

func (s *Service) trackVerification(ctx context.Context, result models.Verification) {
	if s.metrics != nil {
		s.metrics.IncVerification(string(result.Reason))
	}
	if s.tracker == nil {
		return
	}
	decision := "invalid"
	if result.Valid {
		decision = "valid"
	}
	s.tracker.Track(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Subject:   result.Identity.String(),
		Action:    string(audit.EventCertificateVerified),
		Decision:  decision,
		Reason:    string(result.Reason),
		RequestID: requestcontext.RequestID(ctx),
	})
}

func (s *Service) wrapCreateErr(err error) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		if s.metrics != nil {
			s.metrics.IncDuplicate()
		}
		return dErrors.Wrap(models.ErrDuplicateCertificate, dErrors.CodeConflict, "certificate already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store certificate")
}

func wrapCertificateErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(models.ErrCertificateNotFound, dErrors.CodeNotFound, "certificate not found")
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "certificate store is busy, retry later")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update certificate")
}

// toValidation converts constructor invariant violations into validation
// errors for the API.
func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "registry."+name, trace.WithAttributes(attrs...))
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}
