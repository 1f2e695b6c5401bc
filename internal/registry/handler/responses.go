package handler

import (
	"certregistry/internal/registry/models"
)

// CertificateResponse renders a record with integer-second timestamps.
type CertificateResponse struct {
	Identity         string `json:"identity"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	IssueDate        *int64 `json:"issue_date,omitempty"`
	ExpirationDate   int64  `json:"expiration_date"`
	HasCredentials   bool   `json:"has_credentials"`
	Status           string `json:"status"`
	CreatedAt        int64  `json:"created_at"`
	SuspendedAt      *int64 `json:"suspended_at,omitempty"`
}

func toCertificateResponse(c *models.Certificate) CertificateResponse {
	resp := CertificateResponse{
		Identity:       c.Identity.String(),
		ExpirationDate: c.ExpirationDate,
		HasCredentials: c.HasCredentials,
		Status:         string(c.Status),
		CreatedAt:      c.CreatedAt.Unix(),
	}
	if c.HasCredentials {
		issued := c.IssueDate
		resp.FirstName = c.FirstName
		resp.LastName = c.LastName
		resp.OrganizationName = c.OrganizationName
		resp.IssueDate = &issued
	}
	if c.SuspendedAt != nil {
		at := c.SuspendedAt.Unix()
		resp.SuspendedAt = &at
	}
	return resp
}

// VerificationResponse is the outcome of a validity query.
type VerificationResponse struct {
	Identity string `json:"identity"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason"`
}

func toVerificationResponse(v models.Verification) VerificationResponse {
	return VerificationResponse{
		Identity: v.Identity.String(),
		Valid:    v.Valid,
		Reason:   string(v.Reason),
	}
}
