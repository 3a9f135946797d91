package config

import (
	"errors"
	"os"
	"time"
)

// ErrMissingDatabaseURL is returned when no database URL is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Config holds application configuration. Load fills it from the environment
// and LoadFromFile from YAML.
type Config struct {
	DatabaseURL string
	ServerPort  string
	RedisURL    string
	UserAgent   string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from the current directory.
// DATABASE_URL is required; everything else has a default.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ServerPort:  os.Getenv("SERVER_PORT"),
		RedisURL:    os.Getenv("REDIS_URL"),
		UserAgent:   os.Getenv("FETCHER_USER_AGENT"),
	}
	c.Timeout = parseDuration(os.Getenv("FETCHER_TIMEOUT"), defaultTimeout)
	c.CacheTTL = parseDuration(os.Getenv("CACHE_TTL"), defaultCacheTTL)
	c.applyDefaults()
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}

const (
	defaultServerPort = "8080"
	defaultUserAgent  = "ChannelNav/1.0"
	defaultTimeout    = 30 * time.Second
	defaultCacheTTL   = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = defaultServerPort
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// parseDuration returns def when s is empty or malformed.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
