package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"template-service/internal/circuitbreaker"
	apperrors "template-service/internal/common/errors"
	"template-service/internal/common/logging"
	"template-service/internal/metrics"
)

// ErrClosed is returned by Submit once Close has been called.
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher hands every job to a fresh unit.
type Dispatcher struct {
	cfg     Config
	tasks   *Registry
	slots   *semaphore.Weighted
	spawns  *circuitbreaker.Breaker
	metrics *metrics.Metrics
	logger  logging.Logger

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

type Option func(*Dispatcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithSpawnBreaker overrides the breaker guarding process starts.
func WithSpawnBreaker(b *circuitbreaker.Breaker) Option {
	return func(d *Dispatcher) { d.spawns = b }
}

// New creates a dispatcher for the tasks in registry.
func New(cfg Config, tasks *Registry, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ConfigError(fmt.Sprintf("dispatcher: %v", err))
	}
	if tasks == nil {
		return nil, apperrors.ConfigError("dispatcher: nil task registry")
	}
	d := &Dispatcher{
		cfg:    cfg,
		tasks:  tasks,
		slots:  semaphore.NewWeighted(int64(cfg.Units)),
		logger: logging.Component("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.spawns == nil && cfg.Mode == ModeProcess {
		d.spawns = circuitbreaker.New("unit-spawn", circuitbreaker.DefaultConfig(), d.logger)
	}
	return d, nil
}

// HasTask reports whether a task is registered under name.
func (d *Dispatcher) HasTask(name string) bool {
	return d.tasks.Has(name)
}

// Submit runs one job in a fresh unit and waits for it. A returned error
// means the job was rejected: unknown task, closed dispatcher, timeout or
// unit fault. Failures the task handled itself come back as a Result
// with Error set.
func (d *Dispatcher) Submit(ctx context.Context, task string, payload map[string]any) (*Result, error) {
	if !d.tasks.Has(task) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	d.inflight.Add(1)
	d.mu.RUnlock()
	defer d.inflight.Done()

	jobID := uuid.NewString()
	ctx = logging.ContextWith(ctx, logging.JobIDKey, jobID)

	if err := d.slots.Acquire(ctx, 1); err != nil {
		return nil, contextError(ctx, "")
	}
	defer d.slots.Release(1)

	unit := d.spawn(jobID)
	ctx = logging.ContextWith(ctx, logging.UnitIDKey, unit.ID())
	logger := d.logger.WithContext(ctx).WithFields(logging.String("task", task), logging.String("mode", d.cfg.Mode))

	start := time.Now()
	d.metrics.UnitStarted(d.cfg.Mode)
	res, err := unit.Run(ctx, task, payload)
	if terr := unit.Terminate(); terr != nil {
		logger.Warn("Failed to terminate unit", logging.Err(terr))
	}
	elapsed := time.Since(start)

	outcome := outcomeOf(res, err)
	reason := ""
	if err != nil {
		reason = outcome
	}
	d.metrics.UnitFinished(d.cfg.Mode, reason)
	d.metrics.RecordJob(task, outcome, elapsed)

	if err != nil {
		logger.Error("Job rejected", err, logging.Duration("duration", elapsed), logging.String("state", unit.State().String()))
		return nil, err
	}
	logger.Debug("Job finished", logging.Duration("duration", elapsed), logging.String("outcome", outcome))
	return res, nil
}

func (d *Dispatcher) spawn(jobID string) Unit {
	id := uuid.NewString()
	var unit Unit
	if d.cfg.Mode == ModeProcess {
		unit = newProcessUnit(id, jobID, d.cfg, d.startProcess)
	} else {
		unit = newThreadUnit(id, d.tasks, d.cfg.Timeout)
	}
	if l := lifecycleOf(unit); l != nil {
		logger := d.logger.WithFields(logging.String("unit_id", id))
		l.onStateChange = func(from, to State) {
			logger.Debug("Unit state changed", logging.String("from", from.String()), logging.String("to", to.String()))
		}
	}
	return unit
}

func (d *Dispatcher) startProcess(cmd *exec.Cmd) error {
	if d.spawns == nil {
		return cmd.Start()
	}
	return d.spawns.Execute(cmd.Start)
}

func lifecycleOf(u Unit) *lifecycle {
	switch x := u.(type) {
	case *threadUnit:
		return &x.lifecycle
	case *processUnit:
		return &x.lifecycle
	}
	return nil
}

// Close stops accepting jobs and waits for running ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcomeOf(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Error != "":
		return "error"
	case err == nil:
		return "resolved"
	case isTimeout(err):
		return "timeout"
	case apperrors.IsType(err, apperrors.ErrTypeUnitFault):
		return "unit_fault"
	}
	return "rejected"
}

func isTimeout(err error) bool {
	return apperrors.IsType(err, apperrors.ErrTypeTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// contextError describes why ctx ended. unit is empty while no unit has
// been assigned yet.
func contextError(ctx context.Context, unit string) error {
	op := "job"
	if unit == "" {
		op = "waiting for a unit"
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err := apperrors.TimeoutError(op)
		if unit != "" {
			err = err.WithContext("unit_id", unit)
		}
		return err
	}
	return apperrors.InternalError(op+" cancelled", ctx.Err())
}
