package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	apperrors "template-service/internal/common/errors"
	"template-service/internal/transfer"
)

// Environment variables a process unit reads its limits from.
const (
	EnvMemoryLimitMB = "TEMPLATE_SERVICE_UNIT_MEMORY_MB"
	EnvTimeout       = "TEMPLATE_SERVICE_UNIT_TIMEOUT"
	EnvUnitID        = "TEMPLATE_SERVICE_UNIT_ID"
)

// inheritedEnv names the server variables a process unit gets. Everything
// else, the shared key included, stays in the server; settings a unit
// needs are passed through Config.WorkerEnv.
var inheritedEnv = []string{"PATH", "HOME", "TMPDIR", "TZ", "LANG", "GODEBUG", "GOTRACEBACK", "GOCOVERDIR"}

func unitEnv(extra []string) []string {
	env := make([]string, 0, len(inheritedEnv)+len(extra)+3)
	for _, key := range inheritedEnv {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return append(env, extra...)
}

// stderrTail is how much of a unit's stderr is kept for fault messages.
const stderrTail = 2048

// processUnit runs its job in a child process. Nothing but JSON crosses
// the boundary: live callables are rejected and function source travels
// as text with a marker list.
type processUnit struct {
	lifecycle
	id    string
	jobID string
	cfg   Config
	start func(*exec.Cmd) error

	mu  sync.Mutex
	cmd *exec.Cmd
}

func newProcessUnit(id, jobID string, cfg Config, start func(*exec.Cmd) error) *processUnit {
	if start == nil {
		start = (*exec.Cmd).Start
	}
	return &processUnit{id: id, jobID: jobID, cfg: cfg, start: start}
}

func (u *processUnit) ID() string { return u.id }

func (u *processUnit) Run(ctx context.Context, name string, payload map[string]any) (*Result, error) {
	if err := u.transition(StateRunning); err != nil {
		return nil, err
	}
	res, err := u.run(ctx, name, payload)
	u.finish(err)
	return res, err
}

func (u *processUnit) run(ctx context.Context, name string, payload map[string]any) (*Result, error) {
	wire, callables, err := transfer.Encode(payload)
	if err != nil {
		return nil, apperrors.TransferError("encode payload for process unit", err)
	}
	body, err := json.Marshal(Envelope{JobID: u.jobID, Task: name, Payload: wire, Callables: callables})
	if err != nil {
		return nil, apperrors.TransferError("marshal envelope", err)
	}

	binary := u.cfg.WorkerBinary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return nil, apperrors.UnitFaultError("locate worker binary", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, u.cfg.WorkerArgs...)
	cmd.Env = append(unitEnv(u.cfg.WorkerEnv),
		fmt.Sprintf("%s=%d", EnvMemoryLimitMB, u.cfg.MemoryLimitMB),
		fmt.Sprintf("%s=%s", EnvTimeout, u.cfg.Timeout),
		fmt.Sprintf("%s=%s", EnvUnitID, u.id),
	)
	cmd.Stdin = bytes.NewReader(body)
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	u.mu.Lock()
	u.cmd = cmd
	u.mu.Unlock()

	if err := u.start(cmd); err != nil {
		if apperrors.IsType(err, apperrors.ErrTypeUnitFault) {
			return nil, err
		}
		return nil, apperrors.UnitFaultError(fmt.Sprintf("start unit %s", u.id), err)
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, contextError(ctx, u.id)
	}
	if waitErr != nil {
		return nil, u.fault(waitErr, stderr.String())
	}

	var reply Reply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		return nil, apperrors.UnitFaultError(fmt.Sprintf("unit %s sent a malformed reply", u.id), err)
	}
	switch {
	case reply.Fault != nil:
		return nil, reply.Fault.Err()
	case reply.Result == nil:
		return nil, apperrors.UnitFaultError(fmt.Sprintf("unit %s sent an empty reply", u.id), nil)
	}
	return reply.Result, nil
}

func (u *processUnit) fault(err error, tail string) error {
	msg := fmt.Sprintf("unit %s failed", u.id)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("unit %s exited with code %d", u.id, exitErr.ExitCode())
	}
	if tail = strings.TrimSpace(tail); tail != "" {
		msg += ": " + tail
	}
	return apperrors.UnitFaultError(msg, err).WithContext("unit_id", u.id)
}

// Terminate kills the child if it is still running.
func (u *processUnit) Terminate() error {
	if !u.terminate() {
		return nil
	}
	u.mu.Lock()
	cmd := u.cmd
	u.mu.Unlock()
	if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
