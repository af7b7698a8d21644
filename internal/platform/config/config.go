package config

import (
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	TokenTTL       time.Duration
	TrustedProxies []netip.Prefix
	MigrateOnStart bool
	AuditBuffer    int
	Demo           Demo

	Database     Database
	Redis        RedisConfig
	Kafka        Kafka
	Dashboard    Dashboard
	Notification Notification
	RateLimit    RateLimit
}

// Database configures the Postgres pool. An empty URL selects in-memory stores.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the optional dashboard cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the producer used for notifications and the audit mirror.
type Kafka struct {
	Brokers         string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
	AuditTopic      string
}

// Dashboard configures the compliance rollup.
type Dashboard struct {
	CacheTTL time.Duration
}

// Demo configures seeding of sample data for local runs.
type Demo struct {
	Seed     bool
	TenantID string
	ActorID  string
}

// RateLimit caps authenticated requests per tenant. Zero requests disables it.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Notification configures completion notifications.
type Notification struct {
	Topic   string
	Timeout time.Duration
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           envOr("COMPLIANCE_ADDR", ":8080"),
		Environment:    envOr("ENVIRONMENT", "local"),
		JWTSigningKey:  envOr("JWT_SIGNING_KEY", devSigningKey),
		JWTIssuer:      envOr("JWT_ISSUER", "http://localhost:8080"),
		JWTAudience:    envOr("JWT_AUDIENCE", "compliance-api"),
		TokenTTL:       envDuration("TOKEN_TTL", 8*time.Hour),
		TrustedProxies: parsePrefixes(os.Getenv("TRUSTED_PROXIES")),
		MigrateOnStart: os.Getenv("MIGRATE_ON_START") == "true",
		AuditBuffer:    envInt("AUDIT_ASYNC_BUFFER", 0),
		Demo: Demo{
			Seed:     os.Getenv("SEED_DEMO") == "true",
			TenantID: envOr("DEMO_TENANT_ID", "00000000-0000-0000-0000-000000000001"),
			ActorID:  envOr("DEMO_ACTOR_ID", "00000000-0000-0000-0000-000000000002"),
		},
		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:         os.Getenv("KAFKA_BROKERS"),
			Acks:            envOr("KAFKA_ACKS", "all"),
			Retries:         envInt("KAFKA_RETRIES", 3),
			DeliveryTimeout: envDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
			AuditTopic:      os.Getenv("AUDIT_TOPIC"),
		},
		Dashboard: Dashboard{
			CacheTTL: envDuration("DASHBOARD_CACHE_TTL", 30*time.Second),
		},
		Notification: Notification{
			Topic:   envOr("NOTIFICATION_TOPIC", "compliance.notifications"),
			Timeout: envDuration("NOTIFICATION_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimit{
			Requests: envInt("RATE_LIMIT_REQUESTS", 600),
			Window:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

// IsLocal reports whether dev-only conveniences (default signing key) are acceptable.
func (s Server) IsLocal() bool {
	switch s.Environment {
	case "local", "dev", "development", "test":
		return true
	}
	return false
}

// UsesDevSigningKey reports whether JWT_SIGNING_KEY was left unset.
func (s Server) UsesDevSigningKey() bool {
	return s.JWTSigningKey == devSigningKey
}

func envOr(key, fallback string) string {
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parsePrefixes(raw string) []netip.Prefix {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p)
		}
	}
	return out
}
