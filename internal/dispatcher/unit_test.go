package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "template-service/internal/common/errors"
)

func TestLifecycleTransitions(t *testing.T) {
	var seen []string
	l := &lifecycle{onStateChange: func(from, to State) {
		seen = append(seen, from.String()+">"+to.String())
	}}

	require.NoError(t, l.transition(StateRunning))
	assert.Equal(t, StateCompleted, l.finish(nil))
	assert.True(t, l.terminate())
	assert.False(t, l.terminate())

	assert.Equal(t, []string{"spawned>running", "running>completed", "completed>terminated"}, seen)
	assert.Equal(t, StateTerminated, l.State())
}

func TestLifecycleRejectsSecondRun(t *testing.T) {
	l := &lifecycle{}
	require.NoError(t, l.transition(StateRunning))
	l.finish(errors.New("boom"))

	err := l.transition(StateRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateFailed, l.State())
}

func TestLifecycleFinishStates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want State
	}{
		{"completed", nil, StateCompleted},
		{"timed out", apperrors.TimeoutError("job"), StateTimedOut},
		{"deadline", context.DeadlineExceeded, StateTimedOut},
		{"failed", apperrors.UnitFaultError("crash", nil), StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &lifecycle{}
			require.NoError(t, l.transition(StateRunning))
			assert.Equal(t, tt.want, l.finish(tt.err))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "timed-out", StateTimedOut.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestUnitRunsOnce(t *testing.T) {
	tasks := NewRegistry()
	tasks.Register("echo", func(ctx context.Context, p map[string]any) (any, error) { return p["v"], nil })
	u := newThreadUnit("u1", tasks, time.Second)

	res, err := u.Run(context.Background(), "echo", map[string]any{"v": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", res.Resolve)

	_, err = u.Run(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestThreadUnitOwnsPayload(t *testing.T) {
	tasks := NewRegistry()
	tasks.Register("mutate", func(ctx context.Context, p map[string]any) (any, error) {
		p["data"].(map[string]any)["touched"] = true
		return p["data"], nil
	})
	payload := map[string]any{"data": map[string]any{"name": "a"}}

	res, err := newThreadUnit("u1", tasks, time.Second).Run(context.Background(), "mutate", payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "a", "touched": true}, res.Resolve)
	assert.Equal(t, map[string]any{"name": "a"}, payload["data"])
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}

func TestUnitEnvIsAllowListed(t *testing.T) {
	t.Setenv("KEY", "s3cret")
	t.Setenv("TZ", "UTC")

	env := unitEnv([]string{"RENDER_METHOD=dynamic"})
	assert.Contains(t, env, "TZ=UTC")
	assert.Contains(t, env, "RENDER_METHOD=dynamic")
	assert.NotContains(t, env, "KEY=s3cret")
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "resolved", outcomeOf(&Result{Resolve: 1}, nil))
	assert.Equal(t, "error", outcomeOf(&Result{Error: "x"}, nil))
	assert.Equal(t, "timeout", outcomeOf(nil, apperrors.TimeoutError("job")))
	assert.Equal(t, "unit_fault", outcomeOf(nil, apperrors.UnitFaultError("x", nil)))
	assert.Equal(t, "rejected", outcomeOf(nil, ErrClosed))
}
