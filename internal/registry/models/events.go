package models

import (
	"time"

	"certregistry/internal/registry/identity"
)

// Domain events emitted after successful state changes.

type CertificateCreated struct {
	Identity identity.Identity
	Fields   identity.Fields
}

type CertificateRegistered struct {
	Identity       identity.Identity
	ExpirationDate int64
}

type CertificateSuspended struct {
	Identity    identity.Identity
	SuspendedAt time.Time
}
