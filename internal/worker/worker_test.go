package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "template-service/internal/common/errors"
	"template-service/internal/dispatcher"
	"template-service/internal/transfer"
)

func tasks() *dispatcher.Registry {
	r := dispatcher.NewRegistry()
	r.Register("echo", func(ctx context.Context, p map[string]any) (any, error) { return p["value"], nil })
	r.Register("kind", func(ctx context.Context, p map[string]any) (any, error) {
		return fmt.Sprintf("%T", p["fn"]), nil
	})
	r.Register("fail", func(ctx context.Context, p map[string]any) (any, error) {
		return nil, errors.New("no such filter")
	})
	r.Register("panic", func(ctx context.Context, p map[string]any) (any, error) { panic("boom") })
	r.Register("deadline", func(ctx context.Context, p map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	return r
}

func serve(t *testing.T, ctx context.Context, env dispatcher.Envelope) dispatcher.Reply {
	t.Helper()
	in, err := json.Marshal(env)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, Serve(ctx, tasks(), bytes.NewReader(in), &out))
	var reply dispatcher.Reply
	require.NoError(t, json.Unmarshal(out.Bytes(), &reply))
	return reply
}

func TestServe(t *testing.T) {
	reply := serve(t, context.Background(), dispatcher.Envelope{JobID: "j1", Task: "echo", Payload: map[string]any{"value": "hi"}})
	require.NotNil(t, reply.Result)
	assert.Equal(t, "hi", reply.Result.Resolve)

	reply = serve(t, context.Background(), dispatcher.Envelope{Task: "fail"})
	require.NotNil(t, reply.Result)
	assert.Equal(t, "no such filter", reply.Result.Error)
}

func TestServeRejects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
		task string
		want apperrors.ErrorType
	}{
		{"panic", context.Background(), "panic", apperrors.ErrTypeUnitFault},
		{"deadline", ctx, "deadline", apperrors.ErrTypeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := serve(t, tt.ctx, dispatcher.Envelope{Task: tt.task})
			require.NotNil(t, reply.Fault)
			assert.Equal(t, tt.want, reply.Fault.Type)
		})
	}
}

func TestServeUnknownTask(t *testing.T) {
	reply := serve(t, context.Background(), dispatcher.Envelope{Task: "missing"})
	require.NotNil(t, reply.Result)
	assert.Contains(t, reply.Result.Error, "unknown task")
}

func TestServeRestoresSource(t *testing.T) {
	wire, callables, err := transfer.Encode(map[string]any{"fn": transfer.Source("function () {}")})
	require.NoError(t, err)
	reply := serve(t, context.Background(), dispatcher.Envelope{Task: "kind", Payload: wire, Callables: callables})
	require.NotNil(t, reply.Result)
	assert.Equal(t, "transfer.Source", reply.Result.Resolve)
}

func TestServeMalformedEnvelope(t *testing.T) {
	var out bytes.Buffer
	err := Serve(context.Background(), tasks(), strings.NewReader("{not json"), &out)
	assert.Error(t, err)
	assert.Zero(t, out.Len())
}

func TestLimitsFromEnv(t *testing.T) {
	t.Setenv(dispatcher.EnvMemoryLimitMB, "32")
	t.Setenv(dispatcher.EnvTimeout, "250ms")
	t.Setenv(dispatcher.EnvUnitID, "u-1")
	assert.Equal(t, Limits{MemoryMB: 32, Timeout: 250 * time.Millisecond, UnitID: "u-1"}, LimitsFromEnv())

	t.Setenv(dispatcher.EnvMemoryLimitMB, "lots")
	t.Setenv(dispatcher.EnvTimeout, "-1s")
	l := LimitsFromEnv()
	assert.Zero(t, l.MemoryMB)
	assert.Equal(t, defaultLimit, l.Timeout)
}

func TestWatchdogFiresOnGrowth(t *testing.T) {
	wd := newWatchdog(2 << 20)
	wd.interval = time.Millisecond

	fired := make(chan uint64, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go wd.run(ctx, func(used uint64) { fired <- used })

	var keep [][]byte
	for i := 0; i < 16; i++ {
		keep = append(keep, make([]byte, 1<<20))
	}
	select {
	case used := <-fired:
		assert.Greater(t, used, uint64(2<<20))
	case <-ctx.Done():
		t.Fatal("watchdog did not fire")
	}
	runtime.KeepAlive(keep)
}

func TestWatchdogStopsWithContext(t *testing.T) {
	wd := newWatchdog(1 << 30)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		wd.run(ctx, func(uint64) { t.Error("unexpected fire") })
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
}
