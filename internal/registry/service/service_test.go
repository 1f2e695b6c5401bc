package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/metrics"
	"certregistry/internal/registry/models"
	"certregistry/internal/registry/service/mocks"
	dErrors "certregistry/pkg/domain-errors"
	audit "certregistry/pkg/platform/audit"
	"certregistry/pkg/platform/sentinel"
	"certregistry/pkg/requestcontext"
)

// =============================================================================
// Registry Service Test Suite
// =============================================================================
// Justification for unit tests: the service maps store sentinels to domain
// errors and decides when audit events are emitted. Mocks make failure paths
// (store outages, audit write failures) reachable.

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	publisher *mocks.MockAuditPublisher
	tracker   *mocks.MockVerificationTracker
	metrics   *metrics.Metrics
	service   *Service
	ctx       context.Context
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.tracker = mocks.NewMockVerificationTracker(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Unix(1700000000, 0).UTC()
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithRequestID(s.ctx, "req-1")
	s.ctx = requestcontext.WithAuthority(s.ctx, "registry-authority")

	var err error
	s.service, err = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.publisher),
		WithVerificationTracker(s.tracker),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func johnDoe() identity.Fields {
	return identity.Fields{
		FirstName:        "John",
		LastName:         "Doe",
		OrganizationName: "CertOrg",
		IssueDate:        1699788800,
		ExpirationDate:   1765340800,
	}
}

// =============================================================================
// Constructor
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "certificate store is required")
	})

	s.Run("defaults to sharded unit of work", func() {
		svc, err := New(s.store)
		s.Require().NoError(err)
		s.IsType(&shardedStoreTx{}, svc.tx)
	})
}

// =============================================================================
// Create
// =============================================================================

func (s *ServiceSuite) TestCreate() {
	f := johnDoe()
	id := identity.Derive(f)

	s.Run("persists active certificate and emits creation event", func() {
		s.store.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, cert *models.Certificate) error {
				s.Equal(id, cert.Identity)
				s.Equal(models.StatusActive, cert.Status)
				s.True(cert.HasCredentials)
				s.Equal(s.now, cert.CreatedAt)
				return nil
			})
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev audit.Event) error {
				s.Equal(string(audit.EventCertificateCreated), ev.Action)
				s.Equal(id.String(), ev.Subject)
				s.Equal("John", ev.FirstName)
				s.Equal("Doe", ev.LastName)
				s.Equal("CertOrg", ev.OrganizationName)
				s.Equal(f.IssueDate, ev.IssueDate)
				s.Equal(f.ExpirationDate, ev.ExpirationDate)
				s.Equal("req-1", ev.RequestID)
				s.Equal("registry-authority", ev.ActorID)
				return nil
			})

		cert, err := s.service.Create(s.ctx, f)
		s.Require().NoError(err)
		s.Equal(id, cert.Identity)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CertificatesCreated))
	})

	s.Run("duplicate identity is a conflict", func() {
		s.store.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)

		_, err := s.service.Create(s.ctx, f)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.ErrorIs(err, models.ErrDuplicateCertificate)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.DuplicateRejections))
	})

	s.Run("invalid fields are rejected before the store", func() {
		bad := f
		bad.FirstName = "   "

		_, err := s.service.Create(s.ctx, bad)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("store failure is internal", func() {
		s.store.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

		_, err := s.service.Create(s.ctx, f)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("audit failure fails the operation", func() {
		s.store.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox unavailable"))

		_, err := s.service.Create(s.ctx, f)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Register
// =============================================================================

func (s *ServiceSuite) TestRegister() {
	id := identity.Derive(johnDoe())

	s.Run("stores record without credentials", func() {
		s.store.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, cert *models.Certificate) error {
				s.Equal(id, cert.Identity)
				s.False(cert.HasCredentials)
				s.Empty(cert.FirstName)
				s.Equal(int64(1765340800), cert.ExpirationDate)
				return nil
			})
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev audit.Event) error {
				s.Equal(string(audit.EventCertificateRegistered), ev.Action)
				s.Equal(int64(1765340800), ev.ExpirationDate)
				s.Empty(ev.FirstName)
				return nil
			})

		_, err := s.service.Register(s.ctx, id, 1765340800)
		s.Require().NoError(err)
	})

	s.Run("zero identity is a validation error", func() {
		_, err := s.service.Register(s.ctx, identity.Zero, 1765340800)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("expiration out of range is a validation error", func() {
		_, err := s.service.Register(s.ctx, id, -1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate identity is a conflict", func() {
		s.store.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)

		_, err := s.service.Register(s.ctx, id, 1765340800)
		s.ErrorIs(err, models.ErrDuplicateCertificate)
	})
}

// =============================================================================
// Check / Verify
// =============================================================================

func (s *ServiceSuite) TestCheck() {
	id := identity.Derive(johnDoe())
	active := &models.Certificate{Identity: id, ExpirationDate: s.now.Unix() + 1, Status: models.StatusActive}

	s.Run("unknown identity is not found without error", func() {
		s.store.EXPECT().FindByIdentity(gomock.Any(), id).Return(nil, sentinel.ErrNotFound)
		s.tracker.EXPECT().Track(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev audit.Event) {
			s.Equal(string(audit.EventCertificateVerified), ev.Action)
			s.Equal("invalid", ev.Decision)
			s.Equal(string(models.ReasonNotFound), ev.Reason)
		})

		result, err := s.service.Check(s.ctx, id)
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Equal(models.ReasonNotFound, result.Reason)
	})

	s.Run("active unexpired certificate is valid", func() {
		s.store.EXPECT().FindByIdentity(gomock.Any(), id).Return(active, nil)
		s.tracker.EXPECT().Track(gomock.Any(), gomock.Any())

		ok, err := s.service.Verify(s.ctx, id)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Verifications.WithLabelValues("valid")))
	})

	s.Run("store failure is reported", func() {
		s.store.EXPECT().FindByIdentity(gomock.Any(), id).Return(nil, errors.New("timeout"))

		ok, err := s.service.Verify(s.ctx, id)
		s.Require().Error(err)
		s.False(ok)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Suspend
// =============================================================================

// executeAgainst makes the mock store run the callbacks on cert, the way
// real stores do.
func executeAgainst(cert *models.Certificate) func(context.Context, identity.Identity, func(*models.Certificate) error, func(*models.Certificate)) (*models.Certificate, error) {
	return func(_ context.Context, _ identity.Identity, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error) {
		if err := validate(cert); err != nil {
			return nil, err
		}
		mutate(cert)
		return cert.Clone(), nil
	}
}

func (s *ServiceSuite) TestSuspend() {
	id := identity.Derive(johnDoe())

	s.Run("first suspension emits event", func() {
		cert := &models.Certificate{Identity: id, ExpirationDate: 1765340800, Status: models.StatusActive}
		s.store.EXPECT().Execute(gomock.Any(), id, gomock.Any(), gomock.Any()).DoAndReturn(executeAgainst(cert))
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev audit.Event) error {
				s.Equal(string(audit.EventCertificateSuspended), ev.Action)
				s.Equal(id.String(), ev.Subject)
				s.Equal(s.now, ev.Timestamp)
				return nil
			})

		updated, err := s.service.Suspend(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.StatusSuspended, updated.Status)
		s.Require().NotNil(updated.SuspendedAt)
		s.Equal(s.now, *updated.SuspendedAt)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CertificatesSuspended))
	})

	s.Run("suspending again succeeds without an event", func() {
		at := s.now.Add(-time.Hour)
		cert := &models.Certificate{Identity: id, Status: models.StatusSuspended, SuspendedAt: &at}
		s.store.EXPECT().Execute(gomock.Any(), id, gomock.Any(), gomock.Any()).DoAndReturn(executeAgainst(cert))

		updated, err := s.service.Suspend(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(at, *updated.SuspendedAt)
	})

	s.Run("unknown identity is not found", func() {
		s.store.EXPECT().Execute(gomock.Any(), id, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Suspend(s.ctx, id)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.ErrorIs(err, models.ErrCertificateNotFound)
	})

	s.Run("cancelled context aborts before the store", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()

		_, err := s.service.Suspend(ctx, id)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

// =============================================================================
// Get
// =============================================================================

func (s *ServiceSuite) TestGet() {
	id := identity.Derive(johnDoe())

	s.Run("unknown identity is not found", func() {
		s.store.EXPECT().FindByIdentity(gomock.Any(), id).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Get(s.ctx, id)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("malformed credentials never reach the store", func() {
		f := johnDoe()
		f.ExpirationDate = models.MaxTimestamp + 1

		_, err := s.service.GetByCredentials(s.ctx, f)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
