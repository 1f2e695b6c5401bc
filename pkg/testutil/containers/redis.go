//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"certregistry/internal/platform/config"
	redisclient "certregistry/internal/platform/redis"
)

// RedisContainer wraps a Redis instance and a client built the way the
// server builds it.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redisclient.Client
}

// NewRedisContainer starts Redis and connects through the platform client.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	cfg := config.Default().Redis
	cfg.URL = url
	cfg.DialTimeout = 10 * time.Second
	client, err := redisclient.New(ctx, cfg)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to redis: %v", err)
	}

	return &RedisContainer{
		Container: container,
		URL:       url,
		Client:    client,
	}
}

// FlushAll drops every key. Suites call it in SetupTest.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
