// Package config loads the feed server configuration from defaults, an
// optional YAML file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/postfeed/internal/auth"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigPath      = "POSTFEED_CONFIG"
	EnvPort            = "PORT"
	EnvDatabasePath    = "DATABASE_PATH"
	EnvRedisURL        = "REDIS_URL"
	EnvJWTSecret       = "JWT_SECRET"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogPretty       = "LOG_PRETTY"
	EnvAccessTokenTTL  = "ACCESS_TOKEN_TTL"
	EnvRefreshTokenTTL = "REFRESH_TOKEN_TTL"
	EnvPageCacheTTL    = "PAGE_CACHE_TTL"
	EnvRateLimit       = "RATE_LIMIT"
	EnvRateLimitWindow = "RATE_LIMIT_WINDOW"
	EnvCookieSecure    = "COOKIE_SECURE"
)

// Config holds the feed server settings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// CookieSecure marks the refresh cookie Secure (HTTPS only).
	CookieSecure bool `yaml:"cookieSecure"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig enables the page cache and the auth rate limiter.
// An empty URL runs the server without both.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig configures token signing.
type AuthConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTTL"`
}

// CacheConfig configures the /home page cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// RateLimitConfig bounds login, signup and refresh attempts per client.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing overrides it.
// The JWT secret has no default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "data/postfeed.db"},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Cache:     CacheConfig{TTL: 30 * time.Second},
		RateLimit: RateLimitConfig{Limit: 10, Window: time.Minute},
		Log:       LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path names a YAML file; when empty the
// POSTFEED_CONFIG variable is used, and without either only defaults and
// environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if len(c.Auth.Secret) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("%s must be at least %d bytes", EnvJWTSecret, auth.MinSecretLength))
	}
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.RateLimit.Window < time.Second {
		errs = append(errs, errors.New("rate limit window must be at least 1s"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() error {
	c.Server.Port = getEnv(EnvPort, c.Server.Port)
	c.Database.Path = getEnv(EnvDatabasePath, c.Database.Path)
	c.Redis.URL = getEnv(EnvRedisURL, c.Redis.URL)
	c.Auth.Secret = getEnv(EnvJWTSecret, c.Auth.Secret)
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)

	var err error
	if c.Log.Pretty, err = getEnvBool(EnvLogPretty, c.Log.Pretty); err != nil {
		return err
	}
	if c.Server.CookieSecure, err = getEnvBool(EnvCookieSecure, c.Server.CookieSecure); err != nil {
		return err
	}
	if c.Auth.AccessTokenTTL, err = getEnvDuration(EnvAccessTokenTTL, c.Auth.AccessTokenTTL); err != nil {
		return err
	}
	if c.Auth.RefreshTokenTTL, err = getEnvDuration(EnvRefreshTokenTTL, c.Auth.RefreshTokenTTL); err != nil {
		return err
	}
	if c.Cache.TTL, err = getEnvDuration(EnvPageCacheTTL, c.Cache.TTL); err != nil {
		return err
	}
	if c.RateLimit.Window, err = getEnvDuration(EnvRateLimitWindow, c.RateLimit.Window); err != nil {
		return err
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		c.RateLimit.Limit = n
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
