package ratelimit

import (
	"fmt"
	"time"
)

// Config represents rate limiter configuration
type Config struct {
	RequestsPerSecond int  `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int  `json:"burst_size" yaml:"burst_size"`
	Enabled           bool `json:"enabled" yaml:"enabled"`

	// Idle per-key buckets are dropped after CleanupPeriod, and the whole
	// table is swept when it grows beyond MaxKeys.
	MaxKeys       int           `json:"max_keys,omitempty" yaml:"max_keys,omitempty"`
	CleanupPeriod time.Duration `json:"cleanup_period,omitempty" yaml:"cleanup_period,omitempty"`
}

// Validate fills defaults and rejects impossible settings.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond < 0 || c.BurstSize < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.BurstSize == 0 {
		c.BurstSize = c.RequestsPerSecond
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	if c.CleanupPeriod <= 0 {
		c.CleanupPeriod = 5 * time.Minute
	}
	return nil
}

// DefaultConfig returns a default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		BurstSize:         20,
		Enabled:           true,
		MaxKeys:           10000,
		CleanupPeriod:     5 * time.Minute,
	}
}
