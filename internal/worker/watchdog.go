package worker

import (
	"context"
	"runtime/debug"
	"runtime/metrics"
	"time"
)

const (
	heapSample    = "/memory/classes/heap/objects:bytes"
	totalSample   = "/memory/classes/total:bytes"
	checkInterval = 5 * time.Millisecond
)

// watchdog bounds how far the live heap may grow past what the process
// held when the watchdog was created.
type watchdog struct {
	limit    uint64
	baseline uint64
	total    uint64
	interval time.Duration
	samples  []metrics.Sample
}

func newWatchdog(limit uint64) *watchdog {
	w := &watchdog{
		limit:    limit,
		interval: checkInterval,
		samples:  []metrics.Sample{{Name: heapSample}, {Name: totalSample}},
	}
	w.baseline, w.total = w.read()
	return w
}

func (w *watchdog) read() (heap, total uint64) {
	metrics.Read(w.samples)
	if w.samples[0].Value.Kind() == metrics.KindUint64 {
		heap = w.samples[0].Value.Uint64()
	}
	if w.samples[1].Value.Kind() == metrics.KindUint64 {
		total = w.samples[1].Value.Uint64()
	}
	return heap, total
}

// used is how far the heap has grown past the baseline.
func (w *watchdog) used() uint64 {
	heap, _ := w.read()
	if heap < w.baseline {
		return 0
	}
	return heap - w.baseline
}

// applySoftLimit makes the collector work harder before the hard limit
// is reached.
func (w *watchdog) applySoftLimit() {
	debug.SetMemoryLimit(int64(w.total + w.limit))
}

// run calls exceeded once the heap grows past the limit, and returns when
// ctx ends.
func (w *watchdog) run(ctx context.Context, exceeded func(used uint64)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if used := w.used(); used > w.limit {
				exceeded(used)
				return
			}
		}
	}
}
