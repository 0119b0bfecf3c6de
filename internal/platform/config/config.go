package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	ShutdownTimeout time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Registry RegistryConfig
	Stream   StreamConfig
	Tracing  TracingConfig
}

// DatabaseConfig configures the PostgreSQL pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the optional Redis backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures event publishing. Publishing is disabled when
// Brokers is empty.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
	PollInterval    time.Duration
	BatchSize       int
}

// AuthConfig configures issuer token validation.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	TokenTTL   time.Duration
}

// RegistryConfig configures the credential registry itself.
type RegistryConfig struct {
	NetworkID       string
	DigestAlgorithm string
	Backend         string
	CacheTTL        time.Duration
	TxTimeout       time.Duration
	MaxDocumentSize int64
	// Replicas is how many server processes share the registry backend.
	Replicas int
}

// Validate rejects deployments whose commits or cached reads would not be
// consistent. Only postgres orders commits across processes, and the read
// cache only sees writes made by its own process.
func (r RegistryConfig) Validate() error {
	if r.Replicas <= 1 {
		return nil
	}
	if r.Backend != BackendPostgres {
		return fmt.Errorf("REGISTRY_REPLICAS=%d needs the %s backend, got %s", r.Replicas, BackendPostgres, r.Backend)
	}
	if r.CacheTTL > 0 {
		return fmt.Errorf("REGISTRY_CACHE_TTL must be 0 when REGISTRY_REPLICAS=%d", r.Replicas)
	}
	return nil
}

// StreamConfig configures the live CredentialAdded websocket feed.
type StreamConfig struct {
	// AllowedOrigins are host patterns browsers may connect from. Same-origin
	// requests are always accepted.
	AllowedOrigins []string
	Buffer         int
	PingInterval   time.Duration
}

// TracingConfig selects where service spans are exported. Exporter is one
// of "none", "stdout" or "otlp".
type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	SampleRate   float64
	ServiceName  string
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultNetworkID is the network advertised when REGISTRY_NETWORK_ID is unset.
const DefaultNetworkID = "certify-dev"

// DefaultTopic carries CredentialAdded events.
const DefaultTopic = "certify.credentials.added"

// DevSigningKey is the issuer signing key used when none is configured.
// Tokens signed with it must never be accepted outside local development.
const DevSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:            envString("CERTIFY_ADDR", ":8080"),
		Environment:     envString("ENVIRONMENT", "local"),
		LogLevel:        envString("LOG_LEVEL", "info"),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     envBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("KAFKA_BROKERS"),
			Topic:           envString("KAFKA_TOPIC", DefaultTopic),
			Acks:            envString("KAFKA_ACKS", "all"),
			Retries:         envInt("KAFKA_RETRIES", 3),
			DeliveryTimeout: envDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
			PollInterval:    envDuration("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
			BatchSize:       envInt("OUTBOX_BATCH_SIZE", 100),
		},
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			SigningKey: envString("ISSUER_SIGNING_KEY", DevSigningKey),
			Issuer:     envString("ISSUER_TOKEN_ISSUER", "certify"),
			Audience:   envString("ISSUER_TOKEN_AUDIENCE", "certify-registry"),
			TokenTTL:   envDuration("ISSUER_TOKEN_TTL", time.Hour),
		},
		Registry: RegistryConfig{
			NetworkID:       envString("REGISTRY_NETWORK_ID", DefaultNetworkID),
			DigestAlgorithm: envString("REGISTRY_DIGEST_ALGORITHM", "sha256"),
			Backend:         strings.ToLower(envString("REGISTRY_BACKEND", "")),
			CacheTTL:        envDuration("REGISTRY_CACHE_TTL", 0),
			TxTimeout:       envDuration("REGISTRY_TX_TIMEOUT", 5*time.Second),
			MaxDocumentSize: int64(envInt("REGISTRY_MAX_DOCUMENT_SIZE", 10<<20)),
			Replicas:        envInt("REGISTRY_REPLICAS", 1),
		},
		Stream: StreamConfig{
			AllowedOrigins: envList("STREAM_ALLOWED_ORIGINS"),
			Buffer:         envInt("STREAM_BUFFER", 64),
			PingInterval:   envDuration("STREAM_PING_INTERVAL", 30*time.Second),
		},
		Tracing: TracingConfig{
			Exporter:     strings.ToLower(envString("OTEL_TRACES_EXPORTER", "none")),
			OTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
			ServiceName:  envString("OTEL_SERVICE_NAME", "certify"),
		},
	}
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = cfg.defaultBackend()
	}
	return cfg
}

func (s Server) defaultBackend() string {
	switch {
	case s.Database.URL != "":
		return BackendPostgres
	case s.Redis.URL != "":
		return BackendRedis
	default:
		return BackendMemory
	}
}

// IsLocal reports whether the server runs in a developer environment.
func (s Server) IsLocal() bool {
	return s.Environment == "local" || s.Environment == "dev"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envList splits a comma separated variable, dropping blank items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
