package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	// EventLogOnly swaps the broker for the logging publisher. Strictly a
	// local-development escape hatch; with it unset, a missing broker list
	// fails startup instead of silently sinking events.
	EventLogOnly bool

	JWKSURL  string
	Issuer   string
	Audience string

	MaxDBConns int32

	// Store client retry policy.
	StoreMaxAttempts int
	StoreBaseBackoff time.Duration
	StoreMaxBackoff  time.Duration
	StoreCallTimeout time.Duration

	// Publish-pending sweep.
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int

	KeyCacheTTL time.Duration
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		EventLogOnly bool     `yaml:"event_log_only"`
	} `yaml:"dependencies"`
	Identity struct {
		JWKSURL  string `yaml:"jwks_url"`
		Issuer   string `yaml:"issuer"`
		Audience string `yaml:"audience"`
	} `yaml:"identity"`
}

// LoadConfig layers defaults, then the optional YAML file, then environment
// variables. Startup fails on missing identity, database, or broker settings
// unless EventLogOnly explicitly opts out of a broker.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "commerce-core",
		HTTPPort:           8080,
		GRPCPort:           9090,
		MaxDBConns:         20,
		StoreMaxAttempts:   5,
		StoreBaseBackoff:   100 * time.Millisecond,
		StoreMaxBackoff:    5 * time.Second,
		StoreCallTimeout:   8 * time.Second,
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    100,
		OutboxClaimTTL:     30 * time.Second,
		OutboxMaxRetries:   5,
		KeyCacheTTL:        15 * time.Minute,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if f.Dependencies.EventLogOnly {
			cfg.EventLogOnly = true
		}
		if f.Identity.JWKSURL != "" {
			cfg.JWKSURL = f.Identity.JWKSURL
		}
		if f.Identity.Issuer != "" {
			cfg.Issuer = f.Identity.Issuer
		}
		if f.Identity.Audience != "" {
			cfg.Audience = f.Identity.Audience
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.EventLogOnly = envBool("EVENT_LOG_ONLY", cfg.EventLogOnly)
	cfg.JWKSURL = envOrDefault("IDENTITY_JWKS_URL", cfg.JWKSURL)
	cfg.Issuer = envOrDefault("IDENTITY_ISSUER", cfg.Issuer)
	cfg.Audience = envOrDefault("IDENTITY_AUDIENCE", cfg.Audience)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.StoreMaxAttempts = envInt("STORE_MAX_ATTEMPTS", cfg.StoreMaxAttempts)
	cfg.StoreBaseBackoff = time.Duration(envInt("STORE_BASE_BACKOFF_MS", int(cfg.StoreBaseBackoff.Milliseconds()))) * time.Millisecond
	cfg.StoreMaxBackoff = time.Duration(envInt("STORE_MAX_BACKOFF_MS", int(cfg.StoreMaxBackoff.Milliseconds()))) * time.Millisecond
	cfg.StoreCallTimeout = time.Duration(envInt("STORE_CALL_TIMEOUT_MS", int(cfg.StoreCallTimeout.Milliseconds()))) * time.Millisecond
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.KeyCacheTTL = time.Duration(envInt("KEY_CACHE_TTL_SECONDS", int(cfg.KeyCacheTTL.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.JWKSURL == "" || cfg.Issuer == "" || cfg.Audience == "" {
		return Config{}, fmt.Errorf("missing identity provider settings (IDENTITY_JWKS_URL, IDENTITY_ISSUER, IDENTITY_AUDIENCE)")
	}
	if len(cfg.KafkaBrokers) == 0 && !cfg.EventLogOnly {
		return Config{}, fmt.Errorf("missing KAFKA_BROKERS (set EVENT_LOG_ONLY=true to run without a broker)")
	}
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
