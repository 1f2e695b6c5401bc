//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"certregistry/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	contractSuite
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = NewRedis(s.redis.Client.Client)
}

func (s *RedisStoreSuite) TestKeyLayout() {
	cert := newTestCertificate("Layout")
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, cert))

	status, err := s.redis.Client.HGet(s.ctx, "certregistry:cert:"+cert.Identity.String(), "status").Result()
	s.Require().NoError(err)
	s.Equal("active", status)
}

func (s *RedisStoreSuite) TestClientHealth() {
	s.NoError(s.redis.Client.Health(s.ctx))
}
