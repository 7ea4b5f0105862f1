// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the glassgate configuration
// and the logic required to load it from YAML and the environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. GLASSGATE_OAUTH_CLIENT_SECRET.
const EnvPrefix = "GLASSGATE"

// Credential store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Timeline reactions to a shared photo.
const (
	ReactionEcho    = "echo"
	ReactionCaption = "caption"
)

// Config represents the configuration of the service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	OAuth       OAuthConfig       `mapstructure:"oauth" yaml:"oauth"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Mirror      MirrorConfig      `mapstructure:"mirror" yaml:"mirror"`
	Notify      NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	// BaseURL is the externally visible URL, used for the OAuth redirect and
	// the notification callback registered with the Mirror API.
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// OAuthConfig configures the upstream identity provider.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"-"`
	// Issuer enables OIDC discovery. When empty AuthURL, TokenURL and JWKSURL are used.
	Issuer          string        `mapstructure:"issuer" yaml:"issuer"`
	AuthURL         string        `mapstructure:"auth_url" yaml:"auth_url"`
	TokenURL        string        `mapstructure:"token_url" yaml:"token_url"`
	JWKSURL         string        `mapstructure:"jwks_url" yaml:"jwks_url"`
	Scopes          []string      `mapstructure:"scopes" yaml:"scopes"`
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout" yaml:"exchange_timeout"`
}

// CredentialsConfig selects and configures the credential record store.
type CredentialsConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// SQLiteConfig configures the sqlite credential store.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig configures the postgres credential store.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"-"`
}

// RedisConfig is shared by every Redis-backed component.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"-"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// SessionConfig configures session binding.
type SessionConfig struct {
	Type       string        `mapstructure:"type" yaml:"type"`
	CookieName string        `mapstructure:"cookie_name" yaml:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Secure     bool          `mapstructure:"secure" yaml:"secure"`
	Redis      RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// MirrorConfig configures the timeline API client.
type MirrorConfig struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries uint          `mapstructure:"max_retries" yaml:"max_retries"`
}

// NotifyConfig configures notification ingestion.
type NotifyConfig struct {
	MaxLines          int           `mapstructure:"max_lines" yaml:"max_lines"`
	TimelineReaction  string        `mapstructure:"timeline_reaction" yaml:"timeline_reaction"`
	EnableLaunchReply bool          `mapstructure:"enable_launch_reply" yaml:"enable_launch_reply"`
	SigningSecret     string        `mapstructure:"signing_secret" yaml:"-"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	DispatchTimeout   time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`
	DedupTTL          time.Duration `mapstructure:"dedup_ttl" yaml:"dedup_ttl"`
	// DedupBackend is memory or redis. Redis reuses credentials.redis.
	DedupBackend string `mapstructure:"dedup_backend" yaml:"dedup_backend"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
	// ResourceAttributes is a comma-separated list of key=value pairs added
	// to every exported series.
	ResourceAttributes string `mapstructure:"resource_attributes" yaml:"resource_attributes"`
}

// defaultSQLitePath generates the default database path using xdg.
var defaultSQLitePath = func() string {
	path, err := xdg.DataFile(filepath.Join("glassgate", "credentials.db"))
	if err != nil {
		return "glassgate-credentials.db"
	}
	return path
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("oauth.issuer", "https://accounts.google.com")
	v.SetDefault("oauth.auth_url", "")
	v.SetDefault("oauth.token_url", "")
	v.SetDefault("oauth.jwks_url", "")
	v.SetDefault("oauth.scopes", []string{
		"openid",
		"https://www.googleapis.com/auth/glass.timeline",
		"https://www.googleapis.com/auth/glass.location",
		"https://www.googleapis.com/auth/userinfo.profile",
	})
	v.SetDefault("oauth.exchange_timeout", 10*time.Second)

	v.SetDefault("credentials.type", StoreSQLite)
	v.SetDefault("credentials.sqlite.path", defaultSQLitePath())
	v.SetDefault("credentials.postgres.dsn", "")
	v.SetDefault("credentials.redis.addr", "localhost:6379")
	v.SetDefault("credentials.redis.username", "")
	v.SetDefault("credentials.redis.password", "")
	v.SetDefault("credentials.redis.db", 0)
	v.SetDefault("credentials.redis.key_prefix", "glassgate:")

	v.SetDefault("session.type", "memory")
	v.SetDefault("session.cookie_name", "glassgate_session")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.secure", true)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.username", "")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.key_prefix", "glassgate:")

	v.SetDefault("mirror.base_url", "https://www.googleapis.com/mirror/v1")
	v.SetDefault("mirror.timeout", 15*time.Second)
	v.SetDefault("mirror.max_retries", 3)

	v.SetDefault("notify.max_lines", 1000)
	v.SetDefault("notify.timeline_reaction", ReactionEcho)
	v.SetDefault("notify.enable_launch_reply", false)
	v.SetDefault("notify.signing_secret", "")
	v.SetDefault("notify.rate_limit", 50.0)
	v.SetDefault("notify.rate_burst", 100)
	v.SetDefault("notify.dispatch_timeout", 30*time.Second)
	v.SetDefault("notify.dedup_ttl", 10*time.Minute)
	v.SetDefault("notify.dedup_backend", "memory")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("metrics.resource_attributes", "")
}

// Load reads the configuration from path (optional) and the environment and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedirectURL returns the OAuth2 callback URL registered with the provider.
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.Server.BaseURL, "/") + "/oauth2callback"
}

// NotifyURL returns the callback URL registered for Mirror subscriptions.
func (c *Config) NotifyURL() string {
	return strings.TrimSuffix(c.Server.BaseURL, "/") + "/notify"
}

// Redacted returns the configuration as YAML with secrets omitted.
func (c *Config) Redacted() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error serializing config: %w", err)
	}
	return out, nil
}
