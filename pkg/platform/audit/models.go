package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers registry mutations. They are written in the
	// same unit of work as the mutation and must never be dropped.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authority authentication failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers high-volume reads such as verifications.
	// These can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
//
// Subject is the certificate identity in 0x-hex form. Credential fields are
// populated for creation events only.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Subject   string        `json:"subject"`
	Action    string        `json:"action"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	// ActorID is the authority subject that performed a mutation.
	ActorID string `json:"actor_id,omitempty"`

	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	IssueDate        int64  `json:"issue_date,omitempty"`
	ExpirationDate   int64  `json:"expiration_date,omitempty"`
}

type AuditEvent string

const (
	// Registry mutations
	EventCertificateCreated    AuditEvent = "certificate_created"
	EventCertificateRegistered AuditEvent = "certificate_registered"
	EventCertificateSuspended  AuditEvent = "certificate_suspended"

	// Registry reads
	EventCertificateVerified AuditEvent = "certificate_verified"

	// Authority access
	EventAuthorityAuthFailed AuditEvent = "authority_auth_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCertificateCreated:    CategoryCompliance,
	EventCertificateRegistered: CategoryCompliance,
	EventCertificateSuspended:  CategoryCompliance,

	EventAuthorityAuthFailed: CategorySecurity,

	EventCertificateVerified: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SecurityEvent captures an access-control failure for SIEM and alerting.
type SecurityEvent struct {
	Timestamp time.Time
	Subject   string // route that was refused
	Action    string
	Reason    string
	IP        string
	RequestID string
	Severity  Severity
}

// ToEvent converts to the common Event shape for storage.
func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:  CategorySecurity,
		Timestamp: e.Timestamp,
		Subject:   e.Subject,
		Action:    e.Action,
		Decision:  string(e.Severity),
		Reason:    e.Reason,
		RequestID: e.RequestID,
		ActorID:   e.IP,
	}
}
