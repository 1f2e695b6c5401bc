package handler

import (
	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
	dErrors "certregistry/pkg/domain-errors"
)

// CredentialsRequest carries the five hash inputs. Timestamps are integer
// seconds since the Unix epoch.
type CredentialsRequest struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name"`
	IssueDate        int64  `json:"issue_date"`
	ExpirationDate   int64  `json:"expiration_date"`
}

func (r *CredentialsRequest) Fields() identity.Fields {
	return identity.Fields{
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		OrganizationName: r.OrganizationName,
		IssueDate:        r.IssueDate,
		ExpirationDate:   r.ExpirationDate,
	}
}

// Validate checks the fields without normalizing them; the hash covers the
// values exactly as sent.
func (r *CredentialsRequest) Validate() error {
	if err := models.ValidateFields(r.Fields()); err != nil {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return nil
}

// RegisterRequest is the reduced registration shape.
type RegisterRequest struct {
	Identity       string `json:"identity"`
	ExpirationDate int64  `json:"expiration_date"`

	parsed identity.Identity
}

func (r *RegisterRequest) Validate() error {
	if r.Identity == "" {
		return dErrors.New(dErrors.CodeValidation, "identity is required")
	}
	id, err := identity.Parse(r.Identity)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	r.parsed = id
	return nil
}
