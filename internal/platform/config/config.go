// Package config loads service configuration from an optional YAML file and
// CERTREGISTRY_* environment variables. Environment values win over the file,
// and the file wins over the defaults in Default.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable. Leaf keys are derived from
// field names, e.g. CERTREGISTRY_SERVER_READ_HEADER_TIMEOUT, and are never
// looked up without the prefix.
const EnvPrefix = "certregistry"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

var backends = []string{BackendMemory, BackendPostgres, BackendRedis, BackendSQLite}

type Config struct {
	Server    ServerConfig    `yaml:"server"    envconfig:"server"`
	Store     StoreConfig     `yaml:"store"     envconfig:"store"`
	Postgres  PostgresConfig  `yaml:"postgres"  envconfig:"postgres"`
	Redis     RedisConfig     `yaml:"redis"     envconfig:"redis"`
	SQLite    SQLiteConfig    `yaml:"sqlite"    envconfig:"sqlite"`
	Kafka     KafkaConfig     `yaml:"kafka"     envconfig:"kafka"`
	Outbox    OutboxConfig    `yaml:"outbox"    envconfig:"outbox"`
	Authority AuthorityConfig `yaml:"authority" envconfig:"authority"`
	Audit     AuditConfig     `yaml:"audit"     envconfig:"audit"`
	Logging   LoggingConfig   `yaml:"logging"   envconfig:"logging"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr              string        `yaml:"addr"              split_words:"true"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" split_words:"true"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"    split_words:"true"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"   split_words:"true"`
}

type StoreConfig struct {
	Backend   string        `yaml:"backend"   split_words:"true"`
	TxTimeout time.Duration `yaml:"txTimeout" split_words:"true"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"             split_words:"true"`
	MaxOpenConns    int           `yaml:"maxOpenConns"    split_words:"true"`
	MaxIdleConns    int           `yaml:"maxIdleConns"    split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" split_words:"true"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	URL          string        `yaml:"url"          split_words:"true"`
	PoolSize     int           `yaml:"poolSize"     split_words:"true"`
	MinIdleConns int           `yaml:"minIdleConns" split_words:"true"`
	DialTimeout  time.Duration `yaml:"dialTimeout"  split_words:"true"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  split_words:"true"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true"`
}

type SQLiteConfig struct {
	Path        string        `yaml:"path"        split_words:"true"`
	BusyTimeout time.Duration `yaml:"busyTimeout" split_words:"true"`
}

// KafkaConfig enables event delivery to Kafka when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"           split_words:"true"`
	Topic             string   `yaml:"topic"             split_words:"true"`
	ClientID          string   `yaml:"clientId"          split_words:"true"`
	Partitions        int32    `yaml:"partitions"        split_words:"true"`
	ReplicationFactor int16    `yaml:"replicationFactor" split_words:"true"`
	CreateTopics      bool     `yaml:"createTopics"      split_words:"true"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// OutboxConfig drives the relay from the Postgres outbox to Kafka.
type OutboxConfig struct {
	Enabled   bool          `yaml:"enabled"   split_words:"true"`
	Interval  time.Duration `yaml:"interval"  split_words:"true"`
	BatchSize int           `yaml:"batchSize" split_words:"true"`
}

type AuthorityConfig struct {
	SigningKey string        `yaml:"signingKey" split_words:"true"`
	Issuer     string        `yaml:"issuer"     split_words:"true"`
	Audience   string        `yaml:"audience"   split_words:"true"`
	TokenTTL   time.Duration `yaml:"tokenTtl"   split_words:"true"`
}

type AuditConfig struct {
	VerificationSampleRate float64       `yaml:"verificationSampleRate" split_words:"true"`
	VerificationBufferSize int           `yaml:"verificationBufferSize" split_words:"true"`
	SecurityBufferSize     int           `yaml:"securityBufferSize"     split_words:"true"`
	SecurityFlushInterval  time.Duration `yaml:"securityFlushInterval"  split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"  split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Store: StoreConfig{
			Backend:   BackendMemory,
			TxTimeout: 5 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path:        "certregistry.db",
			BusyTimeout: 5 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:             "certregistry.certificates",
			ClientID:          "certregistry",
			Partitions:        3,
			ReplicationFactor: 1,
			CreateTopics:      true,
		},
		Outbox: OutboxConfig{
			Enabled:   true,
			Interval:  2 * time.Second,
			BatchSize: 100,
		},
		Authority: AuthorityConfig{
			Issuer:   "certregistry",
			Audience: "certregistry-api",
			TokenTTL: time.Hour,
		},
		Audit: AuditConfig{
			VerificationSampleRate: 1,
			VerificationBufferSize: 1024,
			SecurityBufferSize:     1024,
			SecurityFlushInterval:  5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers the YAML file at path (skipped when empty) and the environment
// over Default, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings every command relies on.
func (c *Config) Validate() error {
	if !slices.Contains(backends, c.Store.Backend) {
		return fmt.Errorf("invalid store backend %q (must be one of %v)", c.Store.Backend, backends)
	}
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres backend requires postgres.dsn")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis backend requires redis.url")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite backend requires sqlite.path")
		}
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	if c.Audit.VerificationSampleRate < 0 || c.Audit.VerificationSampleRate > 1 {
		return fmt.Errorf("audit.verificationSampleRate must be within [0,1], got %v", c.Audit.VerificationSampleRate)
	}
	return nil
}

// ValidateAuthority checks the token settings the HTTP server needs.
func (c *Config) ValidateAuthority() error {
	if len(c.Authority.SigningKey) < 32 {
		return errors.New("authority.signingKey must be at least 32 bytes")
	}
	if c.Authority.Issuer == "" || c.Authority.Audience == "" {
		return errors.New("authority issuer and audience are required")
	}
	return nil
}

type ctxKey struct{}

// WithContext stores cfg for cobra subcommands.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the stored config, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(ctxKey{}).(*Config)
	return cfg
}
