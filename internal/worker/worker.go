package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	apperrors "template-service/internal/common/errors"
	"template-service/internal/common/logging"
	"template-service/internal/dispatcher"
	"template-service/internal/transfer"
)

// Exit codes of a worker process.
const (
	ExitOK       = 0
	ExitFault    = 1
	ExitMemory   = 3
	maxEnvelope  = 64 << 20
	defaultLimit = 15 * time.Second
)

// Limits are what the parent allows this unit.
type Limits struct {
	MemoryMB int
	Timeout  time.Duration
	UnitID   string
}

// LimitsFromEnv reads the limits the parent put in the environment.
func LimitsFromEnv() Limits {
	l := Limits{Timeout: defaultLimit, UnitID: os.Getenv(dispatcher.EnvUnitID)}
	if mb, err := strconv.Atoi(os.Getenv(dispatcher.EnvMemoryLimitMB)); err == nil && mb > 0 {
		l.MemoryMB = mb
	}
	if d, err := time.ParseDuration(os.Getenv(dispatcher.EnvTimeout)); err == nil && d > 0 {
		l.Timeout = d
	}
	return l
}

// Serve runs the job in the envelope read from r and writes the reply to
// w. It only fails when no reply can be produced at all.
func Serve(ctx context.Context, tasks *dispatcher.Registry, r io.Reader, w io.Writer) error {
	var env dispatcher.Envelope
	if err := json.NewDecoder(io.LimitReader(r, maxEnvelope)).Decode(&env); err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}
	if env.JobID != "" {
		ctx = logging.ContextWith(ctx, logging.JobIDKey, env.JobID)
	}

	v, err := run(ctx, tasks, env)
	reply := dispatcher.NewReply(v, err)
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

func run(ctx context.Context, tasks *dispatcher.Registry, env dispatcher.Envelope) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, apperrors.UnitFaultError(fmt.Sprintf("task %s panicked: %v", env.Task, r), nil)
		}
	}()

	task, err := tasks.Lookup(env.Task)
	if err != nil {
		return nil, err
	}
	decoded, err := transfer.Decode(env.Payload, env.Callables)
	if err != nil {
		return nil, apperrors.TransferError("decode payload", err)
	}
	payload, ok := decoded.(map[string]any)
	if !ok && decoded != nil {
		return nil, apperrors.ValidationError(fmt.Sprintf("payload must be an object, got %T", decoded))
	}
	return task(ctx, payload)
}

// Main is the entry point of the worker command. It returns the process
// exit code.
func Main(ctx context.Context, tasks *dispatcher.Registry, stdin io.Reader, stdout io.Writer) int {
	limits := LimitsFromEnv()
	logger := logging.Component("worker").WithFields(logging.String("unit_id", limits.UnitID))

	if err := limitCPU(limits.Timeout); err != nil {
		logger.Debug("CPU limit not applied", logging.Err(err))
	}

	ctx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	if limits.MemoryMB > 0 {
		wd := newWatchdog(uint64(limits.MemoryMB) << 20)
		wd.applySoftLimit()
		go wd.run(ctx, func(used uint64) {
			logger.Error("Heap limit exceeded", nil,
				logging.Int("limit_mb", limits.MemoryMB),
				logging.Int("heap_mb", int(used>>20)))
			os.Exit(ExitMemory)
		})
	}

	if err := Serve(ctx, tasks, stdin, stdout); err != nil {
		logger.Error("Worker failed", err)
		return ExitFault
	}
	return ExitOK
}
