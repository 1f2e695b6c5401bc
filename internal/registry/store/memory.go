package store

import (
	"context"
	"sync"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
	"certregistry/pkg/platform/sentinel"
)

// InMemory keeps certificates in a map guarded by one RWMutex. Every read and
// write copies the record, so callers never share state with the store.
type InMemory struct {
	mu    sync.RWMutex
	certs map[identity.Identity]*models.Certificate
}

func NewInMemory() *InMemory {
	return &InMemory{certs: make(map[identity.Identity]*models.Certificate)}
}

// CreateIfAbsent inserts cert unless its identity is already present.
func (s *InMemory) CreateIfAbsent(_ context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[cert.Identity]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.certs[cert.Identity] = cert.Clone()
	return nil
}

func (s *InMemory) FindByIdentity(_ context.Context, id identity.Identity) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cert.Clone(), nil
}

// Execute runs validate then mutate against the stored record under the write
// lock. The record is only replaced when validate succeeds.
func (s *InMemory) Execute(_ context.Context, id identity.Identity, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.certs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cert := current.Clone()
	if err := validate(cert); err != nil {
		return nil, err
	}
	mutate(cert)
	s.certs[id] = cert
	return cert.Clone(), nil
}

// Count returns the number of stored certificates.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs), nil
}
