//go:build linux || darwin || freebsd

package worker

import (
	"math"
	"syscall"
	"time"
)

// limitCPU caps the CPU time of the process slightly above timeout, so a
// worker the parent failed to kill still dies.
func limitCPU(timeout time.Duration) error {
	secs := uint64(math.Ceil(timeout.Seconds())) + 1
	return syscall.Setrlimit(syscall.RLIMIT_CPU, &syscall.Rlimit{Cur: secs, Max: secs + 1})
}
