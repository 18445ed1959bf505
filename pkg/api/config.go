// Package api implements the HTTP API: the data-plane invocation route and
// the JWT-protected admin surface for endpoints, models, and stats.
package api

import (
	"os"
	"time"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/api/auth"
)

// EnvAdminSecret is the environment variable for the JWT signing secret.
// When set it takes precedence over the configured secret.
const EnvAdminSecret = "MODELCACHED_ADMIN_SECRET"

// Config holds HTTP API server configuration.
type Config struct {
	// Port is the TCP port the API server listens on. Default: 8080
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30 seconds. Must accommodate model package uploads.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. Default: 120 seconds. Invocations that miss every cache tier
	// fetch and load the model inside the request, so this is deliberately
	// long.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request on a
	// keep-alive connection. Default: 60 seconds.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWT configures admin token generation and validation.
	JWT auth.JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// GetJWTSecret returns the effective JWT secret. The environment variable
// takes precedence over the configured value so deployments can keep the
// secret out of config files.
func (c *Config) GetJWTSecret() string {
	if secret := os.Getenv(EnvAdminSecret); secret != "" {
		if c.JWT.Secret != "" {
			logger.Warn("JWT secret set in both config and environment, using environment",
				"env", EnvAdminSecret)
		}
		return secret
	}
	return c.JWT.Secret
}

// HasJWTSecret reports whether a JWT secret is available from any source.
func (c *Config) HasJWTSecret() bool {
	return c.GetJWTSecret() != ""
}
