package audit

import "context"

// Store persists audit events. Implementations: in-memory (tests and the
// memory backend), the Postgres outbox, and a direct Kafka sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is the narrow interface services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
