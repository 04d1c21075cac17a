// Package config loads trust-core configuration from environment
// variables and validates it before the process serves traffic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/provider"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Redis  RedisConfig
	DB     DBConfig

	LogLevel observability.LogLevel
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds the trust-core configuration surface: the provider
// selection, the inner-auth shared secret, and the verification TTL.
type AuthConfig struct {
	// Provider selects the authentication backend, "local" or "oidc".
	Provider provider.Type

	// InnerAuthSecret is the shared HMAC key. Required; the process must
	// not start without it. Never logged.
	InnerAuthSecret string

	// InnerAuthTTL is the signature freshness window.
	InnerAuthTTL time.Duration

	// SessionTTL is the local provider's session lifetime.
	SessionTTL time.Duration

	// OIDCIssuerURL and OIDCClientID configure the oidc provider.
	OIDCIssuerURL string
	OIDCClientID  string
}

// RedisConfig holds the shared session store connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DBConfig holds the relational store connection settings.
type DBConfig struct {
	URL string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	providerType, err := provider.ParseType(getEnv("KESTREL_AUTH_PROVIDER", string(provider.TypeLocal)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("KESTREL_HOST", "0.0.0.0"),
			Port:            getEnv("KESTREL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("KESTREL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("KESTREL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("KESTREL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("KESTREL_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("KESTREL_HEALTH_PORT", "9090"),
		},
		Auth: AuthConfig{
			Provider:        providerType,
			InnerAuthSecret: os.Getenv("KESTREL_INNER_AUTH_SECRET"),
			InnerAuthTTL:    getEnvDuration("KESTREL_INNER_AUTH_TTL", 5*time.Minute),
			SessionTTL:      getEnvDuration("KESTREL_SESSION_TTL", 30*time.Minute),
			OIDCIssuerURL:   os.Getenv("KESTREL_OIDC_ISSUER_URL"),
			OIDCClientID:    os.Getenv("KESTREL_OIDC_CLIENT_ID"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("KESTREL_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("KESTREL_REDIS_PASSWORD"),
			DB:       getEnvInt("KESTREL_REDIS_DB", 0),
		},
		DB: DBConfig{
			URL: os.Getenv("KESTREL_POSTGRES_URL"),
		},
		LogLevel: observability.ParseLogLevel(getEnv("KESTREL_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate enforces the startup invariants. A missing inner-auth secret
// is fatal here, before any listener opens: the system must never run
// with inner-service trust disabled by accident.
func (c *Config) Validate() error {
	if c.Auth.InnerAuthSecret == "" {
		return identity.ErrMissingSecret
	}
	if c.Auth.InnerAuthTTL <= 0 {
		return fmt.Errorf("config: inner auth TTL must be positive")
	}
	if c.Auth.Provider == provider.TypeOIDC {
		if c.Auth.OIDCIssuerURL == "" {
			return fmt.Errorf("config: KESTREL_OIDC_ISSUER_URL is required for the oidc provider")
		}
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("config: KESTREL_OIDC_CLIENT_ID is required for the oidc provider")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
