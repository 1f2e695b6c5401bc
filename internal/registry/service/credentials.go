package service

import (
	"context"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
)

// Credential-addressed operations. Each validates the five fields, derives
// the identity and delegates, so for any valid f:
//
//	VerifyByCredentials(ctx, f) == Verify(ctx, identity.Derive(f))

// CreateCertificate is Create under the façade name.
func (s *Service) CreateCertificate(ctx context.Context, f identity.Fields) (*models.Certificate, error) {
	return s.Create(ctx, f)
}

// VerifyByCredentials is Verify addressed by credential fields. Fields that
// fail validation are rejected before any lookup, so the equivalence with
// Verify(Derive(f)) holds only for valid fields: an identity registered from
// a malformed field set is reachable by hash alone.
func (s *Service) VerifyByCredentials(ctx context.Context, f identity.Fields) (bool, error) {
	id, err := deriveValidated(f)
	if err != nil {
		return false, err
	}
	return s.Verify(ctx, id)
}

// CheckByCredentials is Check addressed by credential fields.
func (s *Service) CheckByCredentials(ctx context.Context, f identity.Fields) (models.Verification, error) {
	id, err := deriveValidated(f)
	if err != nil {
		return models.Verification{}, err
	}
	return s.Check(ctx, id)
}

func (s *Service) SuspendByCredentials(ctx context.Context, f identity.Fields) (*models.Certificate, error) {
	id, err := deriveValidated(f)
	if err != nil {
		return nil, err
	}
	return s.Suspend(ctx, id)
}

func (s *Service) GetByCredentials(ctx context.Context, f identity.Fields) (*models.Certificate, error) {
	id, err := deriveValidated(f)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func deriveValidated(f identity.Fields) (identity.Identity, error) {
	if err := models.ValidateFields(f); err != nil {
		return identity.Zero, toValidation(err)
	}
	return identity.Derive(f), nil
}
