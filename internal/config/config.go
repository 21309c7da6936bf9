// Package config provides configuration management for the template service.
// It loads configuration from environment variables with sensible defaults
// and validates it so the service refuses to start in an unsafe state.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: "console" or "json" (default: console)
//   - LOG_FILE: Optional log file; logs go to stderr when empty
//   - KEY: Shared secret expected in the ?key= query parameter (required to serve)
//
// Rendering:
//   - RENDER_METHOD: Force "static" or "dynamic" rendering for every job (default: per job)
//   - JOB_TIMEOUT: Wall-clock limit for one render job (default: 15s)
//   - SNIPPET_TIMEOUT: Limit for one field-logic snippet (default: 250ms)
//
// Isolation Units:
//   - ISOLATION_MODE: "process" (child process units) or "thread" (goroutine units, no memory
//     ceiling or kill on timeout) (default: process)
//   - UNIT_COUNT: Number of units allowed to run at once (default: number of CPUs)
//   - UNIT_MEMORY_MB: Memory ceiling per process unit in megabytes (default: 8)
//   - WORKER_BINARY: Executable used for process units (default: this binary)
//
// HTTP:
//   - MAX_BODY_BYTES: Largest accepted request body (default: 16777216)
//   - RATE_LIMIT_ENABLED: Enable per-client rate limiting (default: true)
//   - RATE_LIMIT_RPS: Requests per second per client (default: 50)
//   - RATE_LIMIT_BURST: Burst size per client (default: 100)
//   - METRICS_ENABLED: Expose /metrics (default: true)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Isolation modes accepted by ISOLATION_MODE.
const (
	IsolationThread  = "thread"
	IsolationProcess = "process"
)

// Config holds all configuration values for the template service.
//
// The configuration is loaded using the Load() function and should be
// validated using the Validate() method before use.
type Config struct {
	// Application settings
	Port      string // Server port number
	LogLevel  string // Logging level (debug, info, warn, error)
	LogFormat string // console or json
	LogFile   string // Optional log file path
	Key       string // Shared secret for the HTTP front end

	// Rendering
	RenderMethod   string        // "", "static" or "dynamic"
	JobTimeout     time.Duration // Job-level timeout enforced by the dispatcher
	SnippetTimeout time.Duration // Snippet-level timeout enforced by the expression sandbox

	// Isolation units
	IsolationMode string // "thread" or "process"
	UnitCount     int    // Concurrent units
	UnitMemoryMB  int    // Memory ceiling per process unit
	WorkerBinary  string // Executable for process units

	// HTTP
	MaxBodyBytes     int64
	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int
	MetricsEnabled   bool
}

// Load creates a new Config instance with values loaded from environment variables.
// If an environment variable is not set or cannot be parsed, the corresponding
// default value is used.
//
// This function does not validate the configuration - call Validate() on the
// returned Config to ensure all required values are properly set and valid.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
		LogFile:   getEnv("LOG_FILE", ""),
		Key:       getEnv("KEY", ""),

		RenderMethod:   strings.ToLower(getEnv("RENDER_METHOD", "")),
		JobTimeout:     getDurationEnv("JOB_TIMEOUT", 15*time.Second),
		SnippetTimeout: getDurationEnv("SNIPPET_TIMEOUT", 250*time.Millisecond),

		IsolationMode: strings.ToLower(getEnv("ISOLATION_MODE", IsolationProcess)),
		UnitCount:     getIntEnv("UNIT_COUNT", runtime.NumCPU()),
		UnitMemoryMB:  getIntEnv("UNIT_MEMORY_MB", 8),
		WorkerBinary:  getEnv("WORKER_BINARY", ""),

		MaxBodyBytes:     int64(getIntEnv("MAX_BODY_BYTES", 16<<20)),
		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst:   getIntEnv("RATE_LIMIT_BURST", 100),
		MetricsEnabled:   getBoolEnv("METRICS_ENABLED", true),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value.
//
// This function accepts the representations understood by strconv.ParseBool:
//   - "true", "1", "t", "TRUE", "True" -> true
//   - "false", "0", "f", "FALSE", "False" -> false
//   - Any other value -> defaultValue
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("15s") or bare milliseconds ("15000").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// Validate checks ranges and cross-field rules that do not depend on how the
// service is run. Use ValidateServe before starting the HTTP front end.
//
// This method checks:
//   - Port range
//   - Log format, render method and isolation mode are known values
//   - Timeouts are positive and the snippet timeout is shorter than the job timeout
//   - Unit count and memory ceiling are positive
//   - Rate limit settings when rate limiting is enabled
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.RenderMethod {
	case "", "static", "dynamic":
	default:
		return fmt.Errorf("RENDER_METHOD must be 'static' or 'dynamic'")
	}

	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'console' or 'json'")
	}

	switch c.IsolationMode {
	case IsolationThread, IsolationProcess:
	default:
		return fmt.Errorf("ISOLATION_MODE must be '%s' or '%s'", IsolationThread, IsolationProcess)
	}

	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT must be positive")
	}
	if c.SnippetTimeout <= 0 {
		return fmt.Errorf("SNIPPET_TIMEOUT must be positive")
	}
	if c.SnippetTimeout >= c.JobTimeout {
		return fmt.Errorf("SNIPPET_TIMEOUT must be shorter than JOB_TIMEOUT")
	}

	if c.UnitCount < 1 {
		return fmt.Errorf("UNIT_COUNT must be a positive number")
	}
	if c.UnitMemoryMB < 1 {
		return fmt.Errorf("UNIT_MEMORY_MB must be a positive number")
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("MAX_BODY_BYTES must be a positive number")
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPS < 1 {
			return fmt.Errorf("RATE_LIMIT_RPS must be a positive number")
		}
		if c.RateLimitBurst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be a positive number")
		}
	}

	return nil
}

// ValidateServe runs Validate and additionally requires the shared secret.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Key == "" {
		return fmt.Errorf("KEY environment variable is required")
	}
	return nil
}
