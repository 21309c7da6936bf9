package dispatcher

import (
	"fmt"
	"runtime"
	"time"
)

// Isolation modes.
const (
	ModeThread  = "thread"
	ModeProcess = "process"
)

// Config controls how units are created.
type Config struct {
	// Mode is ModeProcess or ModeThread. Thread units share the caller's
	// process: they enforce neither MemoryLimitMB nor teardown on timeout,
	// since a goroutine cannot be bounded or killed. Use them only where
	// templates are trusted or spawning a process per job costs too much.
	Mode string `yaml:"mode"`
	// Units is how many units may run at the same time.
	Units int `yaml:"units"`
	// Timeout is the wall-clock limit of one job, unit start-up included.
	Timeout time.Duration `yaml:"timeout"`
	// MemoryLimitMB is the heap ceiling of a process unit.
	MemoryLimitMB int `yaml:"memory_limit_mb"`
	// WorkerBinary is the executable of process units. Empty means this
	// binary.
	WorkerBinary string `yaml:"worker_binary"`
	// WorkerArgs are passed to the worker binary.
	WorkerArgs []string `yaml:"worker_args"`
	// WorkerEnv is the environment of process units, on top of a few
	// system variables such as PATH. Nothing else is inherited.
	WorkerEnv []string `yaml:"worker_env"`
}

// DefaultConfig returns process units, one per CPU, with a 15s timeout and
// an 8MB heap ceiling.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeProcess,
		Units:         runtime.GOMAXPROCS(0),
		Timeout:       15 * time.Second,
		MemoryLimitMB: 8,
		WorkerArgs:    []string{"worker"},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Mode != ModeThread && c.Mode != ModeProcess {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeThread, ModeProcess, c.Mode)
	}
	if c.Units <= 0 {
		return fmt.Errorf("units must be positive, got %d", c.Units)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.Mode == ModeProcess && c.MemoryLimitMB <= 0 {
		return fmt.Errorf("memory limit must be positive, got %d", c.MemoryLimitMB)
	}
	return nil
}
