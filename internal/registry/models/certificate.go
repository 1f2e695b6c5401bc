package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"certregistry/internal/registry/identity"
	dErrors "certregistry/pkg/domain-errors"
)

const (
	// MaxTimestamp is 9999-12-31T23:59:59Z.
	MaxTimestamp int64 = 253402300799
	// MaxTextLength bounds each text credential in bytes.
	MaxTextLength = 256
)

var (
	// ErrDuplicateCertificate is wrapped by the service when an identity is
	// already registered.
	ErrDuplicateCertificate = errors.New("duplicate certificate")
	// ErrCertificateNotFound is wrapped by the service when a mutation targets
	// an unknown identity.
	ErrCertificateNotFound = errors.New("certificate not found")
)

// Certificate is the registry record for one identity.
//
// Invariants:
//   - Identity == identity.Derive(Fields()) whenever HasCredentials is true
//   - Status only moves active -> suspended
//   - Every field except Status and SuspendedAt is immutable after construction
//
// Records built through NewRegistration carry no credentials; only the
// identity and the expiration are known.
type Certificate struct {
	Identity         identity.Identity `json:"identity"`
	FirstName        string            `json:"first_name,omitempty"`
	LastName         string            `json:"last_name,omitempty"`
	OrganizationName string            `json:"organization_name,omitempty"`
	IssueDate        int64             `json:"issue_date,omitempty"`
	ExpirationDate   int64             `json:"expiration_date"`
	HasCredentials   bool              `json:"has_credentials"`
	Status           Status            `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	SuspendedAt      *time.Time        `json:"suspended_at,omitempty"`
}

// NewCertificate validates f and builds an active record keyed by its derived identity.
func NewCertificate(f identity.Fields, now time.Time) (*Certificate, error) {
	if err := ValidateFields(f); err != nil {
		return nil, err
	}
	return &Certificate{
		Identity:         identity.Derive(f),
		FirstName:        f.FirstName,
		LastName:         f.LastName,
		OrganizationName: f.OrganizationName,
		IssueDate:        f.IssueDate,
		ExpirationDate:   f.ExpirationDate,
		HasCredentials:   true,
		Status:           StatusActive,
		CreatedAt:        now,
	}, nil
}

// NewRegistration builds an active record from a precomputed identity.
func NewRegistration(id identity.Identity, expirationDate int64, now time.Time) (*Certificate, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity cannot be zero")
	}
	if err := validateTimestamp("expiration_date", expirationDate); err != nil {
		return nil, err
	}
	return &Certificate{
		Identity:       id,
		ExpirationDate: expirationDate,
		Status:         StatusActive,
		CreatedAt:      now,
	}, nil
}

// ValidateFields checks credential input. Values are hashed exactly as given
// and never normalized; a whitespace-only field counts as empty.
func ValidateFields(f identity.Fields) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"first_name", f.FirstName},
		{"last_name", f.LastName},
		{"organization_name", f.OrganizationName},
	} {
		if strings.TrimSpace(field.value) == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, field.name+" cannot be empty")
		}
		if len(field.value) > MaxTextLength {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("%s must be %d bytes or less", field.name, MaxTextLength))
		}
	}
	if err := validateTimestamp("issue_date", f.IssueDate); err != nil {
		return err
	}
	return validateTimestamp("expiration_date", f.ExpirationDate)
}

func validateTimestamp(name string, ts int64) error {
	if ts < 0 || ts > MaxTimestamp {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("%s must be between 0 and %d", name, MaxTimestamp))
	}
	return nil
}

// Fields returns the hash inputs held by the record.
func (c *Certificate) Fields() identity.Fields {
	return identity.Fields{
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		OrganizationName: c.OrganizationName,
		IssueDate:        c.IssueDate,
		ExpirationDate:   c.ExpirationDate,
	}
}

func (c *Certificate) IsActive() bool {
	return c.Status == StatusActive
}

// IsExpiredAt reports whether now has reached the expiration instant.
func (c *Certificate) IsExpiredAt(now time.Time) bool {
	return now.Unix() >= c.ExpirationDate
}

// Check evaluates validity at now. Validity requires an active status and
// now strictly before the expiration.
func (c *Certificate) Check(now time.Time) Verification {
	switch {
	case !c.IsActive():
		return Verification{Identity: c.Identity, Reason: ReasonSuspended}
	case c.IsExpiredAt(now):
		return Verification{Identity: c.Identity, Reason: ReasonExpired}
	default:
		return Verification{Identity: c.Identity, Valid: true, Reason: ReasonValid}
	}
}

// IsValidAt is Check(now).Valid.
func (c *Certificate) IsValidAt(now time.Time) bool {
	return c.Check(now).Valid
}

// CanSuspend reports whether ApplySuspension would change the record.
// Suspension is idempotent, so false is not an error.
func (c *Certificate) CanSuspend() bool {
	return c.Status.CanTransitionTo(StatusSuspended)
}

// ApplySuspension moves an active record to suspended and reports whether a
// transition happened. Suspended records are left untouched.
func (c *Certificate) ApplySuspension(now time.Time) bool {
	if !c.CanSuspend() {
		return false
	}
	c.Status = StatusSuspended
	c.SuspendedAt = &now
	return true
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (c *Certificate) Clone() *Certificate {
	cp := *c
	if c.SuspendedAt != nil {
		at := *c.SuspendedAt
		cp.SuspendedAt = &at
	}
	return &cp
}
