package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ngi-firn/firn-auth/pkg/docstore"
	"github.com/ngi-firn/firn-auth/pkg/observability"
	"github.com/ngi-firn/firn-auth/pkg/session"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Docstore configuration (user registry backend)
	Docstore docstore.Config `yaml:"docstore"`

	// Session store configuration
	Session session.Config `yaml:"session"`

	// Token issuance configuration
	Token TokenConfig `yaml:"token"`

	// OAuth provider configuration
	OAuth OAuthConfig `yaml:"oauth"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"healthPort"`

	// CORSOrigins are the portal frontend origins allowed to call the API
	CORSOrigins []string `yaml:"corsOrigins"`

	// SecureCookies marks the session cookie Secure; disable only for local
	// development over plain HTTP
	SecureCookies bool `yaml:"secureCookies"`
}

// TokenConfig holds bearer-token issuance settings
type TokenConfig struct {
	// Secret derives the encryption key when KeyFile is unset
	Secret string `yaml:"secret"`
	// KeyFile points at key material that is hot-reloaded on change
	KeyFile string `yaml:"keyFile"`

	IssuerURN  string        `yaml:"issuerURN"`
	DefaultTTL time.Duration `yaml:"defaultTTL"`

	// SweepSchedule is the cron spec for the expired-token sweep
	SweepSchedule string `yaml:"sweepSchedule"`
}

// OAuthConfig holds both provider registrations
type OAuthConfig struct {
	Google GoogleOAuthConfig `yaml:"google"`
	GitHub GitHubOAuthConfig `yaml:"github"`

	// PostLoginRedirect is where the browser lands after a callback
	PostLoginRedirect string `yaml:"postLoginRedirect"`
}

// GoogleOAuthConfig registers the primary provider
type GoogleOAuthConfig struct {
	ClientID      string `yaml:"clientID"`
	ClientSecret  string `yaml:"clientSecret"`
	RedirectURL   string `yaml:"redirectURL"`
	AllowedDomain string `yaml:"allowedDomain"`
}

// GitHubOAuthConfig registers the secondary provider
type GitHubOAuthConfig struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURL  string `yaml:"redirectURL"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"-"`
	// LogLevelName is the yaml/env spelling of LogLevel
	LogLevelName string `yaml:"logLevel"`

	// Metrics
	MetricsEnabled bool `yaml:"metricsEnabled"`

	// TracingEnabled wraps the API router in otelhttp instrumentation
	TracingEnabled bool `yaml:"tracingEnabled"`
}

// LoadConfig loads configuration from an optional YAML file (FIRN_CONFIG_FILE)
// with environment variables taking precedence.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("FIRN_CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Observability.LogLevel = observability.ParseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			SecureCookies:   true,
		},
		Docstore: docstore.DefaultConfig(),
		Session:  session.DefaultConfig(),
		Token: TokenConfig{
			DefaultTTL:    7 * 24 * time.Hour,
			SweepSchedule: "@hourly",
		},
		OAuth: OAuthConfig{
			PostLoginRedirect: "/",
		},
		Observability: ObservabilityConfig{
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

// applyEnv overlays FIRN_-prefixed environment variables.
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("FIRN_HOST", c.Server.Host)
	c.Server.Port = getEnv("FIRN_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("FIRN_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("FIRN_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("FIRN_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("FIRN_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("FIRN_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	if origins := getEnv("FIRN_CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = strings.Split(origins, ",")
	}
	c.Server.SecureCookies = getEnvBool("FIRN_SECURE_COOKIES", c.Server.SecureCookies)

	c.Docstore.Driver = getEnv("FIRN_DOCSTORE_DRIVER", c.Docstore.Driver)
	c.Docstore.DSN = getEnv("FIRN_DOCSTORE_DSN", c.Docstore.DSN)
	c.Docstore.MaxConns = getEnvInt("FIRN_DOCSTORE_MAX_CONNS", c.Docstore.MaxConns)
	c.Docstore.MinConns = getEnvInt("FIRN_DOCSTORE_MIN_CONNS", c.Docstore.MinConns)
	c.Docstore.Timeout = getEnvDuration("FIRN_DOCSTORE_TIMEOUT", c.Docstore.Timeout)

	c.Session.URL = getEnv("FIRN_REDIS_URL", c.Session.URL)
	c.Session.Password = getEnv("FIRN_REDIS_PASSWORD", c.Session.Password)
	c.Session.DB = getEnvInt("FIRN_REDIS_DB", c.Session.DB)
	c.Session.PoolSize = getEnvInt("FIRN_REDIS_POOL_SIZE", c.Session.PoolSize)
	c.Session.TTL = getEnvDuration("FIRN_SESSION_TTL", c.Session.TTL)

	c.Token.Secret = getEnv("FIRN_TOKEN_SECRET", c.Token.Secret)
	c.Token.KeyFile = getEnv("FIRN_TOKEN_KEY_FILE", c.Token.KeyFile)
	c.Token.IssuerURN = getEnv("FIRN_TOKEN_ISSUER", c.Token.IssuerURN)
	c.Token.DefaultTTL = getEnvDuration("FIRN_TOKEN_TTL", c.Token.DefaultTTL)
	c.Token.SweepSchedule = getEnv("FIRN_TOKEN_SWEEP_SCHEDULE", c.Token.SweepSchedule)

	c.OAuth.Google.ClientID = getEnv("FIRN_GOOGLE_CLIENT_ID", c.OAuth.Google.ClientID)
	c.OAuth.Google.ClientSecret = getEnv("FIRN_GOOGLE_CLIENT_SECRET", c.OAuth.Google.ClientSecret)
	c.OAuth.Google.RedirectURL = getEnv("FIRN_GOOGLE_REDIRECT_URL", c.OAuth.Google.RedirectURL)
	c.OAuth.Google.AllowedDomain = getEnv("FIRN_ALLOWED_DOMAIN", c.OAuth.Google.AllowedDomain)
	c.OAuth.GitHub.ClientID = getEnv("FIRN_GITHUB_CLIENT_ID", c.OAuth.GitHub.ClientID)
	c.OAuth.GitHub.ClientSecret = getEnv("FIRN_GITHUB_CLIENT_SECRET", c.OAuth.GitHub.ClientSecret)
	c.OAuth.GitHub.RedirectURL = getEnv("FIRN_GITHUB_REDIRECT_URL", c.OAuth.GitHub.RedirectURL)
	c.OAuth.PostLoginRedirect = getEnv("FIRN_POST_LOGIN_REDIRECT", c.OAuth.PostLoginRedirect)

	c.Observability.LogLevelName = getEnv("FIRN_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("FIRN_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.TracingEnabled = getEnvBool("FIRN_TRACING_ENABLED", c.Observability.TracingEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Docstore.Driver {
	case "postgres", "sqlite3":
		if c.Docstore.DSN == "" {
			return fmt.Errorf("docstore DSN is required for driver %s", c.Docstore.Driver)
		}
	case "memory":
		// In-process backend for development; no DSN.
	default:
		return fmt.Errorf("invalid docstore driver: %s (must be postgres, sqlite3, or memory)", c.Docstore.Driver)
	}

	if c.Session.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Token.Secret == "" && c.Token.KeyFile == "" {
		return fmt.Errorf("token secret or key file is required")
	}

	if c.OAuth.Google.ClientID != "" {
		if c.OAuth.Google.ClientSecret == "" || c.OAuth.Google.RedirectURL == "" {
			return fmt.Errorf("Google client secret and redirect URL are required when the client ID is set")
		}
	}
	if c.OAuth.GitHub.ClientID != "" {
		if c.OAuth.GitHub.ClientSecret == "" || c.OAuth.GitHub.RedirectURL == "" {
			return fmt.Errorf("GitHub client secret and redirect URL are required when the client ID is set")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
