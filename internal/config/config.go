// Package config provides configuration loading, validation, and
// hot-reload watching for the API Gateway.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/hameed1198/api-gateway/internal/util"
)

// Configuration defaults.
const (
	DefaultListenAddr      = ":8080"
	DefaultBackendBaseURL  = "https://jsonplaceholder.typicode.com"
	DefaultBackendTimeout  = 30 * time.Second
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRateLimitWindow = time.Minute
	DefaultAuditMaxRecords = 10000
	DefaultRetryAttempts   = 2
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultBreakerMinCalls = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// Config is the root gateway configuration.
type Config struct {
	Listener       ListenerConfig   `yaml:"listener"`
	Backend        BackendConfig    `yaml:"backend"`
	RateLimit      RateLimitConfig  `yaml:"rateLimit"`
	FloodLimit     FloodLimitConfig `yaml:"floodLimit"`
	Audit          AuditConfig      `yaml:"audit"`
	Log            LogConfig        `yaml:"log"`
	Partners       []PartnerConfig  `yaml:"partners"`
	TrustedProxies []string         `yaml:"trustedProxies"`
}

// ListenerConfig configures the HTTP listener.
type ListenerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// BackendConfig configures the proxied backend service.
type BackendConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	Timeout        Duration      `yaml:"timeout"`
	Retry          RetryConfig   `yaml:"retry"`
	CircuitBreaker BreakerConfig `yaml:"circuitBreaker"`
}

// RetryConfig configures forwarder-internal retries for idempotent
// requests that hit transient connection failures.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	Backoff     Duration `yaml:"backoff"`
}

// BreakerConfig configures the circuit breaker around the forwarder.
type BreakerConfig struct {
	Enabled  bool     `yaml:"enabled"`
	MinCalls int      `yaml:"minCalls"`
	Cooldown Duration `yaml:"cooldown"`
}

// RateLimitConfig configures per-partner rate limiting. Disabled
// switches the gateway to a no-op limiter that admits every request.
type RateLimitConfig struct {
	Disabled        bool     `yaml:"disabled"`
	Window          Duration `yaml:"window"`
	CleanupInterval Duration `yaml:"cleanupInterval"`
}

// FloodLimitConfig configures the optional server-wide flood limiter.
// This is a coarse listener guard, independent of per-partner quotas.
type FloodLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond"`
	Burst             int  `yaml:"burst"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	MaxRecords int `yaml:"maxRecords"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PartnerConfig declares a partner to register at startup.
type PartnerConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Token        string   `yaml:"token"`
	Capabilities []string `yaml:"capabilities"`
	RateLimit    int      `yaml:"rateLimit"`
}

// Default returns a configuration with all defaults applied and no
// partners (the partner store seeds its demo set in that case).
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values with defaults.
func (c *Config) applyDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = DefaultListenAddr
	}
	if c.Listener.ReadTimeout == 0 {
		c.Listener.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if c.Listener.WriteTimeout == 0 {
		c.Listener.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if c.Listener.ShutdownTimeout == 0 {
		c.Listener.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendBaseURL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = Duration(DefaultBackendTimeout)
	}
	if c.Backend.Retry.MaxAttempts == 0 {
		c.Backend.Retry.MaxAttempts = DefaultRetryAttempts
	}
	if c.Backend.Retry.Backoff == 0 {
		c.Backend.Retry.Backoff = Duration(DefaultRetryBackoff)
	}
	if c.Backend.CircuitBreaker.MinCalls == 0 {
		c.Backend.CircuitBreaker.MinCalls = DefaultBreakerMinCalls
	}
	if c.Backend.CircuitBreaker.Cooldown == 0 {
		c.Backend.CircuitBreaker.Cooldown = Duration(DefaultBreakerCooldown)
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = Duration(DefaultRateLimitWindow)
	}
	if c.RateLimit.CleanupInterval == 0 {
		c.RateLimit.CleanupInterval = c.RateLimit.Window
	}
	if c.Audit.MaxRecords == 0 {
		c.Audit.MaxRecords = DefaultAuditMaxRecords
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listener.Addr == "" {
		return util.NewConfigError("listener.addr", "must not be empty")
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return util.NewConfigError("backend.baseURL",
			fmt.Sprintf("must be an absolute http(s) URL, got %q", c.Backend.BaseURL))
	}

	if c.Backend.Timeout.Duration() <= 0 {
		return util.NewConfigError("backend.timeout", "must be positive")
	}
	if c.Backend.Retry.MaxAttempts < 1 {
		return util.NewConfigError("backend.retry.maxAttempts", "must be at least 1")
	}
	if c.RateLimit.Window.Duration() <= 0 {
		return util.NewConfigError("rateLimit.window", "must be positive")
	}
	if c.Audit.MaxRecords <= 0 {
		return util.NewConfigError("audit.maxRecords", "must be positive")
	}
	if c.FloodLimit.Enabled && c.FloodLimit.RequestsPerSecond <= 0 {
		return util.NewConfigError("floodLimit.requestsPerSecond", "must be positive when enabled")
	}

	seenIDs := make(map[string]bool, len(c.Partners))
	seenTokens := make(map[string]bool, len(c.Partners))
	for i, p := range c.Partners {
		field := fmt.Sprintf("partners[%d]", i)
		if p.ID == "" {
			return util.NewConfigError(field+".id", "must not be empty")
		}
		if seenIDs[p.ID] {
			return util.NewConfigError(field+".id", fmt.Sprintf("duplicate partner id %q", p.ID))
		}
		seenIDs[p.ID] = true
		if p.Token != "" {
			if seenTokens[p.Token] {
				return util.NewConfigError(field+".token", "duplicate partner token")
			}
			seenTokens[p.Token] = true
		}
		if p.RateLimit < 0 {
			return util.NewConfigError(field+".rateLimit", "must not be negative")
		}
	}

	return nil
}
