//go:build !(linux || darwin || freebsd)

package worker

import "time"

func limitCPU(time.Duration) error { return nil }
