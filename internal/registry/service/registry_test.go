package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
	"certregistry/internal/registry/store"
	dErrors "certregistry/pkg/domain-errors"
	audit "certregistry/pkg/platform/audit"
	"certregistry/pkg/platform/audit/publishers/compliance"
	auditmemory "certregistry/pkg/platform/audit/store/memory"
	"certregistry/pkg/requestcontext"
)

// =============================================================================
// Registry Behavior Suite
// =============================================================================
// Justification: these tests run the service against the in-memory store and
// the compliance publisher to pin the externally visible behavior: expiry
// boundaries, idempotent suspension, credential/hash equivalence, and
// duplicate handling under concurrency.

type RegistrySuite struct {
	suite.Suite
	certs   *store.InMemory
	events  *auditmemory.InMemoryStore
	service *Service
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.certs = store.NewInMemory()
	s.events = auditmemory.NewInMemoryStore()
	var err error
	s.service, err = New(s.certs, WithAuditPublisher(compliance.New(s.events)))
	s.Require().NoError(err)
}

func at(unix int64) context.Context {
	return requestcontext.WithTime(context.Background(), time.Unix(unix, 0))
}

func (s *RegistrySuite) actions() []string {
	events, err := s.events.ListAll(context.Background())
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Action)
	}
	return out
}

func (s *RegistrySuite) TestValidityIsStrictlyBeforeExpiration() {
	f := johnDoe()
	_, err := s.service.CreateCertificate(at(f.IssueDate), f)
	s.Require().NoError(err)

	s.Run("one second before expiration is valid", func() {
		ok, err := s.service.VerifyByCredentials(at(f.ExpirationDate-1), f)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("at expiration is invalid", func() {
		result, err := s.service.CheckByCredentials(at(f.ExpirationDate), f)
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Equal(models.ReasonExpired, result.Reason)
	})

	s.Run("after expiration is invalid", func() {
		ok, err := s.service.Verify(at(f.ExpirationDate+1), identity.Derive(f))
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *RegistrySuite) TestCredentialAndHashPathsAgree() {
	f := johnDoe()
	id := identity.Derive(f)
	check := func(ctx context.Context) {
		byCreds, err := s.service.VerifyByCredentials(ctx, f)
		s.Require().NoError(err)
		byHash, err := s.service.Verify(ctx, id)
		s.Require().NoError(err)
		s.Equal(byHash, byCreds)
	}

	check(at(f.IssueDate))
	_, err := s.service.CreateCertificate(at(f.IssueDate), f)
	s.Require().NoError(err)
	check(at(f.IssueDate))
	check(at(f.ExpirationDate))
	_, err = s.service.SuspendByCredentials(at(f.IssueDate+10), f)
	s.Require().NoError(err)
	check(at(f.IssueDate + 20))
}

func (s *RegistrySuite) TestSuspendIsIdempotent() {
	f := johnDoe()
	_, err := s.service.CreateCertificate(at(f.IssueDate), f)
	s.Require().NoError(err)

	first, err := s.service.SuspendByCredentials(at(f.IssueDate+10), f)
	s.Require().NoError(err)
	second, err := s.service.Suspend(at(f.IssueDate+20), identity.Derive(f))
	s.Require().NoError(err)

	s.Equal(models.StatusSuspended, second.Status)
	s.Equal(*first.SuspendedAt, *second.SuspendedAt)
	s.Equal([]string{
		string(audit.EventCertificateCreated),
		string(audit.EventCertificateSuspended),
	}, s.actions())

	result, err := s.service.Check(at(f.IssueDate+30), identity.Derive(f))
	s.Require().NoError(err)
	s.Equal(models.ReasonSuspended, result.Reason)
}

func (s *RegistrySuite) TestDuplicateNeverOverwrites() {
	f := johnDoe()
	original, err := s.service.CreateCertificate(at(100), f)
	s.Require().NoError(err)

	_, err = s.service.CreateCertificate(at(200), f)
	s.Require().ErrorIs(err, models.ErrDuplicateCertificate)

	stored, err := s.service.GetByCredentials(at(300), f)
	s.Require().NoError(err)
	s.Equal(original.CreatedAt, stored.CreatedAt)
	s.Len(s.actions(), 1)
}

func (s *RegistrySuite) TestRegisteredIdentityBlocksLaterCreate() {
	f := johnDoe()
	_, err := s.service.Register(at(100), identity.Derive(f), f.ExpirationDate)
	s.Require().NoError(err)

	_, err = s.service.CreateCertificate(at(200), f)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	ok, err := s.service.VerifyByCredentials(at(f.ExpirationDate-1), f)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RegistrySuite) TestUnknownCertificate() {
	f := johnDoe()

	ok, err := s.service.VerifyByCredentials(at(0), f)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.service.SuspendByCredentials(at(0), f)
	s.Require().ErrorIs(err, models.ErrCertificateNotFound)
	s.Empty(s.actions())
}

func (s *RegistrySuite) TestMalformedCredentialsAreRejected() {
	f := johnDoe()
	f.OrganizationName = ""

	_, err := s.service.VerifyByCredentials(at(0), f)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RegistrySuite) TestRegisteredFromMalformedFieldsIsReachableByHashOnly() {
	f := johnDoe()
	f.FirstName = ""
	id := identity.Derive(f)
	_, err := s.service.Register(at(0), id, f.ExpirationDate)
	s.Require().NoError(err)

	ok, err := s.service.Verify(at(f.ExpirationDate-1), id)
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.service.VerifyByCredentials(at(f.ExpirationDate-1), f)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestConcurrentCreateHasOneWinner(t *testing.T) {
	certs := store.NewInMemory()
	events := auditmemory.NewInMemoryStore()
	svc, err := New(certs, WithAuditPublisher(compliance.New(events)))
	require.NoError(t, err)

	const goroutines = 50
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
	)
	start := make(chan struct{})
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.CreateCertificate(context.Background(), johnDoe())
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				duplicates.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(goroutines-1), duplicates.Load())
	all, err := events.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentSuspendEmitsOnce(t *testing.T) {
	certs := store.NewInMemory()
	events := auditmemory.NewInMemoryStore()
	svc, err := New(certs, WithAuditPublisher(compliance.New(events)))
	require.NoError(t, err)

	f := johnDoe()
	_, err = svc.CreateCertificate(context.Background(), f)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SuspendByCredentials(context.Background(), f)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	suspended, err := events.ListBySubject(context.Background(), identity.Derive(f).String())
	require.NoError(t, err)
	count := 0
	for _, ev := range suspended {
		if ev.Action == string(audit.EventCertificateSuspended) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestShardedStoreTxSerializesSameIdentity(t *testing.T) {
	tx := NewShardedStoreTx(time.Second)
	id := identity.Derive(johnDoe())

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.RunInTx(context.Background(), id, func(context.Context) error {
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}
