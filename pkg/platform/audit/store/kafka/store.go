// Package kafka writes audit events straight to a Kafka topic. It serves the
// backends that cannot share a transaction with an outbox table.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	audit "certregistry/pkg/platform/audit"
)

// Producer synchronously publishes one record.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Store struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Store {
	return &Store{producer: producer, topic: topic}
}

type payload struct {
	ID string `json:"id"`
	audit.Event
}

// Append publishes the event keyed by its subject so all events of one
// certificate land on the same partition in order.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event.Category = audit.AuditEvent(event.Action).Category()
	value, err := json.Marshal(payload{ID: uuid.NewString(), Event: event})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(event.Subject), value); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}
