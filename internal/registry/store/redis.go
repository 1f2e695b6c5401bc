package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
	"certregistry/pkg/platform/sentinel"
)

const (
	defaultKeyPrefix = "certregistry:cert:"
	maxWatchRetries  = 16
)

// Hash fields of a certificate key.
const (
	fieldFirstName      = "first_name"
	fieldLastName       = "last_name"
	fieldOrganization   = "organization_name"
	fieldIssueDate      = "issue_date"
	fieldExpirationDate = "expiration_date"
	fieldHasCredentials = "has_credentials"
	fieldStatus         = "status"
	fieldCreatedAt      = "created_at"
	fieldSuspendedAt    = "suspended_at"
)

// createIfAbsent writes the hash only when the key does not exist yet.
var createIfAbsent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// Redis stores one hash per certificate identity. Creation is a Lua script;
// mutations use WATCH/MULTI so a concurrent writer forces a retry.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, keyPrefix: defaultKeyPrefix}
}

func (s *Redis) key(id identity.Identity) string {
	return s.keyPrefix + id.String()
}

func (s *Redis) CreateIfAbsent(ctx context.Context, cert *models.Certificate) error {
	created, err := createIfAbsent.Run(ctx, s.client, []string{s.key(cert.Identity)}, encodeHash(cert)...).Int()
	if err != nil {
		return fmt.Errorf("redis create certificate: %w", err)
	}
	if created == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Redis) FindByIdentity(ctx context.Context, id identity.Identity) (*models.Certificate, error) {
	values, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis find certificate: %w", err)
	}
	return decodeHash(id, values)
}

func (s *Redis) Execute(ctx context.Context, id identity.Identity, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error) {
	key := s.key(id)
	var result *models.Certificate

	txf := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis load certificate: %w", err)
		}
		cert, err := decodeHash(id, values)
		if err != nil {
			return err
		}
		if err := validate(cert); err != nil {
			return err
		}
		mutate(cert)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldStatus, string(cert.Status), fieldSuspendedAt, formatMicros(cert.SuspendedAt))
			return nil
		})
		if err != nil {
			return err
		}
		result = cert
		return nil
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("redis update certificate: %w", sentinel.ErrUnavailable)
}

func encodeHash(cert *models.Certificate) []any {
	return []any{
		fieldFirstName, cert.FirstName,
		fieldLastName, cert.LastName,
		fieldOrganization, cert.OrganizationName,
		fieldIssueDate, strconv.FormatInt(cert.IssueDate, 10),
		fieldExpirationDate, strconv.FormatInt(cert.ExpirationDate, 10),
		fieldHasCredentials, strconv.FormatBool(cert.HasCredentials),
		fieldStatus, string(cert.Status),
		fieldCreatedAt, strconv.FormatInt(cert.CreatedAt.UnixMicro(), 10),
		fieldSuspendedAt, formatMicros(cert.SuspendedAt),
	}
}

func decodeHash(id identity.Identity, values map[string]string) (*models.Certificate, error) {
	if len(values) == 0 {
		return nil, sentinel.ErrNotFound
	}
	cert := &models.Certificate{
		Identity:         id,
		FirstName:        values[fieldFirstName],
		LastName:         values[fieldLastName],
		OrganizationName: values[fieldOrganization],
	}
	var err error
	if cert.IssueDate, err = strconv.ParseInt(values[fieldIssueDate], 10, 64); err != nil {
		return nil, fmt.Errorf("decode issue_date: %w", err)
	}
	if cert.ExpirationDate, err = strconv.ParseInt(values[fieldExpirationDate], 10, 64); err != nil {
		return nil, fmt.Errorf("decode expiration_date: %w", err)
	}
	if cert.HasCredentials, err = strconv.ParseBool(values[fieldHasCredentials]); err != nil {
		return nil, fmt.Errorf("decode has_credentials: %w", err)
	}
	if cert.Status, err = models.ParseStatus(values[fieldStatus]); err != nil {
		return nil, err
	}
	createdAt, err := strconv.ParseInt(values[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	cert.CreatedAt = time.UnixMicro(createdAt).UTC()
	if raw := values[fieldSuspendedAt]; raw != "" {
		micros, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode suspended_at: %w", err)
		}
		at := time.UnixMicro(micros).UTC()
		cert.SuspendedAt = &at
	}
	return cert, nil
}

func formatMicros(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}
