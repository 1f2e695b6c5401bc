package models

import (
	"certregistry/internal/registry/identity"
	dErrors "certregistry/pkg/domain-errors"
)

// Status is the lifecycle state of a certificate.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusSuspended
}

// CanTransitionTo allows active -> suspended only. There is no way back.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next == StatusSuspended
}

// ParseStatus reads a stored status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "unknown certificate status: "+raw)
	}
	return s, nil
}

// Reason explains a verification outcome.
type Reason string

const (
	ReasonValid     Reason = "valid"
	ReasonNotFound  Reason = "not_found"
	ReasonSuspended Reason = "suspended"
	ReasonExpired   Reason = "expired"
)

// Verification is the outcome of a validity query.
type Verification struct {
	Identity identity.Identity `json:"identity"`
	Valid    bool              `json:"valid"`
	Reason   Reason            `json:"reason"`
}

// NotFound is the verification of an unknown identity.
func NotFound(id identity.Identity) Verification {
	return Verification{Identity: id, Reason: ReasonNotFound}
}
