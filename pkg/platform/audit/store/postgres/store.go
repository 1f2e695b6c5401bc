package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "certregistry/pkg/platform/audit"
	txcontext "certregistry/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table inside the caller's transaction and
// relayed to Kafka by the outbox relay.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Entry is one outbox row awaiting publication.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// outboxPayload is the JSON published to Kafka.
type outboxPayload struct {
	ID string `json:"id"`
	audit.Event
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// The category map is the source of truth, whatever the caller set.
	event.Category = audit.AuditEvent(event.Action).Category()

	payloadBytes, err := json.Marshal(outboxPayload{ID: eventID.String(), Event: event})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		eventID,
		"certificate",
		event.Subject,
		event.Action,
		payloadBytes,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Pending returns up to limit unpublished entries, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given entries as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	query := `UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[]) AND published_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, at, pq.Array(raw)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// ListBySubject returns the outbox history for one certificate identity.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `
		SELECT payload FROM outbox
		WHERE aggregate_type = 'certificate' AND aggregate_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query outbox by subject: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox payload: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		events = append(events, p.Event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return events, nil
}
