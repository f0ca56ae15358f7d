// Package meshconfig holds operator-facing tunables: orphan-buffer grace
// periods, optional queue bounds, and default call timeouts. None of it
// changes wire semantics; it only governs when an unbounded buffer is
// allowed to become a RoutingError.
package meshconfig

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures one IdChannel / reflected-trait runtime.
type Config struct {
	// OrphanGracePeriod bounds how long a frame may sit in the orphan table
	// waiting for its fork's consumer to be installed before the
	// router reports a RoutingError on that fork. Zero means wait forever.
	OrphanGracePeriod time.Duration `yaml:"orphan_grace_period"`

	// MaxForkQueueDepth bounds the inbound queue kept per fork. Zero means
	// unbounded, the default.
	MaxForkQueueDepth int `yaml:"max_fork_queue_depth"`

	// MaxOrphanQueueDepth bounds how many orphaned frames are buffered for
	// any one fork id. Zero means unbounded.
	MaxOrphanQueueDepth int `yaml:"max_orphan_queue_depth"`

	// CallTimeout is the default timeout reflectmesh applies to a proxy
	// method call when the caller's context carries no deadline.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// EnableTelemetry turns on the meshobserve metrics IdChannel and
	// reflectmesh record; the transports record theirs regardless.
	EnableTelemetry bool `yaml:"enable_telemetry"`
}

// ConfigOption configures a Config via functional options.
type ConfigOption func(*Config)

// WithOrphanGracePeriod sets the orphan-table grace period.
func WithOrphanGracePeriod(d time.Duration) ConfigOption {
	return func(c *Config) { c.OrphanGracePeriod = d }
}

// WithMaxForkQueueDepth bounds the per-fork inbound queue.
func WithMaxForkQueueDepth(n int) ConfigOption {
	return func(c *Config) { c.MaxForkQueueDepth = n }
}

// WithMaxOrphanQueueDepth bounds the orphan buffer kept per fork id.
func WithMaxOrphanQueueDepth(n int) ConfigOption {
	return func(c *Config) { c.MaxOrphanQueueDepth = n }
}

// WithCallTimeout sets the default reflected-call timeout.
func WithCallTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.CallTimeout = d }
}

// WithTelemetry toggles metrics/tracing.
func WithTelemetry(enabled bool) ConfigOption {
	return func(c *Config) { c.EnableTelemetry = enabled }
}

// DefaultConfig returns conservative defaults: unbounded queues, no
// orphan-grace timeout, a generous call timeout, telemetry on.
func DefaultConfig(opts ...ConfigOption) *Config {
	c := &Config{
		OrphanGracePeriod:   0,
		MaxForkQueueDepth:   0,
		MaxOrphanQueueDepth: 0,
		CallTimeout:         30 * time.Second,
		EnableTelemetry:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadFile reads a YAML config file, layering it over DefaultConfig.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
