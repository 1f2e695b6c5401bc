package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "certregistry.certificates", cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certregistry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  shutdownTimeout: 3s
store:
  backend: sqlite
sqlite:
  path: /var/lib/certregistry/registry.db
kafka:
  brokers: ["file-broker:9092"]
`), 0o600))

	t.Setenv("CERTREGISTRY_SERVER_ADDR", ":7070")
	t.Setenv("CERTREGISTRY_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/certregistry/registry.db", cfg.SQLite.Path)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout, "unset values keep defaults")
}

func TestLoadIgnoresUnprefixedEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":1234")
	t.Setenv("BACKEND", BackendRedis)
	t.Setenv("URL", "redis://stranger:6379")
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("SIGNING_KEY", "not-ours-not-ours-not-ours-not-ours")
	t.Setenv("TOPIC", "elsewhere")
	t.Setenv("LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Server.Addr, cfg.Server.Addr)
	assert.Equal(t, def.Store.Backend, cfg.Store.Backend)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, def.SQLite.Path, cfg.SQLite.Path)
	assert.Empty(t, cfg.Authority.SigningKey)
	assert.Equal(t, def.Kafka.Topic, cfg.Kafka.Topic)
	assert.Equal(t, def.Logging.Level, cfg.Logging.Level)
}

func TestLoadDerivesMultiWordKeys(t *testing.T) {
	t.Setenv("CERTREGISTRY_SERVER_READ_HEADER_TIMEOUT", "9s")
	t.Setenv("CERTREGISTRY_KAFKA_CLIENT_ID", "registry-eu")
	t.Setenv("CERTREGISTRY_AUTHORITY_TOKEN_TTL", "10m")
	t.Setenv("CERTREGISTRY_AUDIT_VERIFICATION_SAMPLE_RATE", "0.25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, "registry-eu", cfg.Kafka.ClientID)
	assert.Equal(t, 10*time.Minute, cfg.Authority.TokenTTL)
	assert.InDelta(t, 0.25, cfg.Audit.VerificationSampleRate, 0)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "invalid store backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "postgres.dsn"},
		{"redis without url", func(c *Config) { c.Store.Backend = BackendRedis }, "redis.url"},
		{"sample rate above one", func(c *Config) { c.Audit.VerificationSampleRate = 1.5 }, "verificationSampleRate"},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"b:9092"}
			c.Kafka.Topic = ""
		}, "kafka.topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateAuthority(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.ValidateAuthority())

	cfg.Authority.SigningKey = "0123456789abcdef0123456789abcdef"
	require.NoError(t, cfg.ValidateAuthority())
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := Default()
	assert.Same(t, cfg, FromContext(WithContext(context.Background(), cfg)))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
