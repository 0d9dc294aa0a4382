package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting the service needs. It is loaded once at
// process start and passed explicitly to each component; nothing else reads
// the environment.
type Config struct {
	Host       string `env:"BACKOFFICE_HOST" envDefault:"0.0.0.0"`
	Port       int    `env:"BACKOFFICE_PORT" envDefault:"8080"`
	PathPrefix string `env:"BACKOFFICE_PATH_PREFIX"`

	DatabaseURL string `env:"BACKOFFICE_DATABASE_URL"`
	RedisURL    string `env:"BACKOFFICE_REDIS_URL" envDefault:"redis://localhost:6379/0"`

	JWTSecret            string `env:"BACKOFFICE_JWT_SECRET"`
	AccessTokenExpMins   int    `env:"BACKOFFICE_JWT_EXP" envDefault:"15"`
	RefreshTokenExpMins  int    `env:"BACKOFFICE_JWT_REFRESH_EXP" envDefault:"1440"`

	DBMaxOpenConns    int `env:"BACKOFFICE_DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int `env:"BACKOFFICE_DB_MAX_IDLE_CONNS" envDefault:"10"`
	RedisPoolSize     int `env:"BACKOFFICE_REDIS_POOL_SIZE" envDefault:"10"`
	RedisPoolTimeoutS int `env:"BACKOFFICE_REDIS_POOL_TIMEOUT_SECONDS" envDefault:"3"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the token and session lifecycle depend on.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.AccessTokenExpMins <= 0 {
		return errors.New("config: access token lifetime must be positive")
	}
	if c.RefreshTokenExpMins <= c.AccessTokenExpMins {
		return errors.New("config: refresh token lifetime must exceed access token lifetime")
	}
	return nil
}

// AccessTokenTTL returns the access token lifetime as a duration. The session
// entry TTL equals this value.
func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpMins) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (c Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpMins) * time.Minute
}

// Addr returns the host:port the HTTP server binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisPoolTimeout returns the bounded wait applied when the session pool is
// exhausted.
func (c Config) RedisPoolTimeout() time.Duration {
	return time.Duration(c.RedisPoolTimeoutS) * time.Second
}
