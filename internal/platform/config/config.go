package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration, loaded from the environment.
type Config struct {
	Server    Server
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Outbox    OutboxConfig
	Snapshot  SnapshotConfig
	Seed      SeedConfig
	RateLimit RateLimitConfig
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string `env:"REGWATCH_ADDR" envDefault:":8080"`
	// AdminToken guards write endpoints. Empty rejects every write.
	AdminToken string `env:"ADMIN_API_TOKEN"`
	// AdminTokenHash is a bcrypt hash of the admin token and takes
	// precedence over AdminToken when set.
	AdminTokenHash string `env:"ADMIN_API_TOKEN_HASH"`
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers name the client. Empty trusts no forwarding header.
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// RegistrationLockTimeout bounds how long a writer waits for the
	// per-domain registration lock.
	RegistrationLockTimeout time.Duration `env:"REGISTRATION_LOCK_TIMEOUT" envDefault:"5s"`
}

// PostgresConfig configures the transition log database. An empty URL
// selects the in-memory stores.
type PostgresConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	Migrate         bool          `env:"DB_MIGRATE" envDefault:"true"`
}

func (c PostgresConfig) Enabled() bool { return c.URL != "" }

// RedisConfig configures the snapshot cache backend. An empty URL selects
// the in-process cache.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

func (c RedisConfig) Enabled() bool { return c.URL != "" }

// KafkaConfig configures the audit stream. No brokers disables publishing.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic             string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"regwatch.audit"`
	Partitions        int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`
	ClientID          string   `env:"KAFKA_CLIENT_ID" envDefault:"regwatch"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// OutboxConfig tunes the outbox relay.
type OutboxConfig struct {
	PollInterval     time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize        int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	FailureThreshold int           `env:"OUTBOX_BREAKER_FAILURES" envDefault:"5"`
	Cooldown         time.Duration `env:"OUTBOX_BREAKER_COOLDOWN" envDefault:"30s"`
}

// SnapshotConfig configures the cached-snapshot listing.
type SnapshotConfig struct {
	TTL time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"1m"`
}

// SeedConfig controls fixture loading at startup.
type SeedConfig struct {
	Enabled bool `env:"SEED_FIXTURES" envDefault:"false"`
}

// RateLimitConfig bounds requests per client IP. Zero disables a class.
type RateLimitConfig struct {
	ReadsPerWindow  int           `env:"RATE_LIMIT_READS" envDefault:"600"`
	WritesPerWindow int           `env:"RATE_LIMIT_WRITES" envDefault:"60"`
	Window          time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Outbox.BatchSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	return cfg, nil
}
