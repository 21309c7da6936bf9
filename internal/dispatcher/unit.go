package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle position of a unit.
type State int

const (
	// StateSpawned means the unit exists but has not been given a job
	StateSpawned State = iota
	// StateRunning means the unit is running its job
	StateRunning
	// StateCompleted means the job finished with a result
	StateCompleted
	// StateFailed means the unit faulted
	StateFailed
	// StateTimedOut means the job ran past its deadline
	StateTimedOut
	// StateTerminated means the unit has been torn down
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when a unit is asked to move to a state
// it cannot reach from where it is, such as running a second job.
var ErrInvalidTransition = errors.New("invalid unit state transition")

var transitions = map[State][]State{
	StateSpawned:   {StateRunning, StateTerminated},
	StateRunning:   {StateCompleted, StateFailed, StateTimedOut},
	StateCompleted: {StateTerminated},
	StateFailed:    {StateTerminated},
	StateTimedOut:  {StateTerminated},
}

// Unit is an isolation unit. It runs one job and is then terminated.
type Unit interface {
	ID() string
	State() State
	// Run executes task with payload. It may be called once.
	Run(ctx context.Context, task string, payload map[string]any) (*Result, error)
	// Terminate tears the unit down. It is safe to call more than once.
	Terminate() error
}

// lifecycle enforces the unit state machine.
type lifecycle struct {
	mu            sync.Mutex
	state         State
	onStateChange func(from, to State)
}

func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *lifecycle) transition(to State) error {
	l.mu.Lock()
	from := l.state
	allowed := false
	for _, s := range transitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	l.state = to
	hook := l.onStateChange
	l.mu.Unlock()

	if hook != nil {
		hook(from, to)
	}
	return nil
}

// finish moves a running unit to the state matching its outcome.
func (l *lifecycle) finish(err error) State {
	to := StateCompleted
	switch {
	case err == nil:
	case isTimeout(err):
		to = StateTimedOut
	default:
		to = StateFailed
	}
	_ = l.transition(to)
	return to
}

// terminate moves the unit to StateTerminated unless it already is.
func (l *lifecycle) terminate() bool {
	if l.State() == StateTerminated {
		return false
	}
	return l.transition(StateTerminated) == nil
}
