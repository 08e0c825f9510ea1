package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	envJWTSecret     = "CONTROL_JWT_SECRET"
	envJWTExpiration = "CONTROL_JWT_EXPIRATION_HOURS"

	minSecretLen          = 16
	defaultExpirationHour = 24
)

// JWTConfig signs and checks control API tokens.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// NewJWTConfig reads CONTROL_JWT_SECRET and CONTROL_JWT_EXPIRATION_HOURS.
// An unset secret yields (nil, nil): the control API then runs without auth.
func NewJWTConfig() (*JWTConfig, error) {
	secret, ok := os.LookupEnv(envJWTSecret)
	if !ok || secret == "" {
		return nil, nil
	}

	cfg := &JWTConfig{Secret: secret, ExpirationHours: defaultExpirationHour}
	if raw := os.Getenv(envJWTExpiration); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", envJWTExpiration, raw, err)
		}
		cfg.ExpirationHours = hours
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects short secrets and non-positive lifetimes.
func (c *JWTConfig) Validate() error {
	switch {
	case len(c.Secret) < minSecretLen:
		return fmt.Errorf("%s must be at least %d characters", envJWTSecret, minSecretLen)
	case c.ExpirationHours < 1:
		return fmt.Errorf("%s must be at least 1, got %d", envJWTExpiration, c.ExpirationHours)
	}
	return nil
}

// TTL is the lifetime of an issued token.
func (c *JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}
