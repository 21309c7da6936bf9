package dispatcher_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "template-service/internal/common/errors"
	"template-service/internal/common/logging"
	"template-service/internal/dispatcher"
	"template-service/internal/metrics"
	"template-service/internal/transfer"
	"template-service/internal/worker"
)

// envHelper makes the test binary act as a process unit.
const envHelper = "DISPATCHER_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(envHelper) == "1" {
		os.Exit(worker.Main(context.Background(), testTasks(), os.Stdin, os.Stdout))
	}
	os.Exit(m.Run())
}

func echo(ctx context.Context, p map[string]any) (any, error) {
	return p["value"], nil
}

func testTasks() *dispatcher.Registry {
	r := dispatcher.DefaultRegistry(echo)
	r.Register("echo", echo)
	r.Register("fail", func(ctx context.Context, p map[string]any) (any, error) {
		return nil, apperrors.RenderError("template error", errors.New("unexpected end"))
	})
	r.Register("panic", func(ctx context.Context, p map[string]any) (any, error) {
		panic("kaboom")
	})
	r.Register("block", func(ctx context.Context, p map[string]any) (any, error) {
		time.Sleep(time.Minute)
		return nil, nil
	})
	r.Register("spin", func(ctx context.Context, p map[string]any) (any, error) {
		n := 0
		for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); {
			n++
		}
		return n, nil
	})
	r.Register("crash", func(ctx context.Context, p map[string]any) (any, error) {
		fmt.Fprintln(os.Stderr, "fatal: corrupted state")
		os.Exit(2)
		return nil, nil
	})
	r.Register("hog", func(ctx context.Context, p map[string]any) (any, error) {
		var keep [][]byte
		for ctx.Err() == nil {
			keep = append(keep, make([]byte, 1<<20))
			time.Sleep(time.Millisecond)
		}
		return len(keep), nil
	})
	r.Register("env", func(ctx context.Context, p map[string]any) (any, error) {
		name, _ := p["name"].(string)
		return os.Getenv(name), nil
	})
	r.Register("call", func(ctx context.Context, p map[string]any) (any, error) {
		return fmt.Sprintf("%T", p["fn"]), nil
	})
	return r
}

func threadConfig(timeout time.Duration) dispatcher.Config {
	cfg := dispatcher.DefaultConfig()
	cfg.Mode = dispatcher.ModeThread
	cfg.Units = 4
	cfg.Timeout = timeout
	return cfg
}

func processConfig(t *testing.T, timeout time.Duration) dispatcher.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("process units spawn the test binary")
	}
	cfg := threadConfig(timeout)
	cfg.Mode = dispatcher.ModeProcess
	cfg.WorkerBinary = os.Args[0]
	cfg.WorkerArgs = nil
	cfg.WorkerEnv = []string{envHelper + "=1"}
	return cfg
}

func newDispatcher(t *testing.T, cfg dispatcher.Config, opts ...dispatcher.Option) *dispatcher.Dispatcher {
	t.Helper()
	opts = append([]dispatcher.Option{dispatcher.WithLogger(logging.Nop())}, opts...)
	d, err := dispatcher.New(cfg, testTasks(), opts...)
	require.NoError(t, err)
	return d
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*dispatcher.Config)
	}{
		{"bad mode", func(c *dispatcher.Config) { c.Mode = "fiber" }},
		{"no units", func(c *dispatcher.Config) { c.Units = 0 }},
		{"no timeout", func(c *dispatcher.Config) { c.Timeout = 0 }},
		{"no memory", func(c *dispatcher.Config) { c.Mode = dispatcher.ModeProcess; c.MemoryLimitMB = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := dispatcher.DefaultConfig()
			tt.mutate(&cfg)
			_, err := dispatcher.New(cfg, testTasks())
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}

	_, err := dispatcher.New(dispatcher.DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestDefaultConfigUsesProcessUnits(t *testing.T) {
	cfg := dispatcher.DefaultConfig()
	assert.Equal(t, dispatcher.ModeProcess, cfg.Mode)
	assert.Equal(t, 8, cfg.MemoryLimitMB)
	assert.Equal(t, []string{"worker"}, cfg.WorkerArgs)
	require.NoError(t, cfg.Validate())
}

// outcomes runs the same jobs in both modes.
func TestOutcomes(t *testing.T) {
	modes := map[string]func(t *testing.T) dispatcher.Config{
		"thread":  func(t *testing.T) dispatcher.Config { return threadConfig(5 * time.Second) },
		"process": func(t *testing.T) dispatcher.Config { return processConfig(t, 5*time.Second) },
	}
	for mode, config := range modes {
		t.Run(mode, func(t *testing.T) {
			d := newDispatcher(t, config(t))
			ctx := context.Background()

			res, err := d.Submit(ctx, "echo", map[string]any{"value": map[string]any{"n": 1.0}})
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"n": 1.0}, res.Resolve)

			res, err = d.Submit(ctx, "nunjucks", map[string]any{"value": "aliased"})
			require.NoError(t, err)
			assert.Equal(t, "aliased", res.Resolve)

			res, err = d.Submit(ctx, "fail", nil)
			require.NoError(t, err)
			assert.Equal(t, "template error: unexpected end", res.Error)

			_, err = d.Submit(ctx, "panic", nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnitFault))
			assert.Contains(t, err.Error(), "kaboom")
		})
	}
}

func TestUnknownTask(t *testing.T) {
	d := newDispatcher(t, threadConfig(time.Second))
	_, err := d.Submit(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, dispatcher.ErrUnknownTask)
	assert.False(t, d.HasTask("missing"))
	assert.True(t, d.HasTask("render"))
}

func TestThreadTimeout(t *testing.T) {
	for _, task := range []string{"block", "spin"} {
		t.Run(task, func(t *testing.T) {
			d := newDispatcher(t, threadConfig(50*time.Millisecond))
			start := time.Now()
			_, err := d.Submit(context.Background(), task, nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTimeout))
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestProcessTimeoutKillsUnit(t *testing.T) {
	d := newDispatcher(t, processConfig(t, 300*time.Millisecond))
	start := time.Now()
	_, err := d.Submit(context.Background(), "spin", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestProcessCrash(t *testing.T) {
	d := newDispatcher(t, processConfig(t, 5*time.Second))
	_, err := d.Submit(context.Background(), "crash", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnitFault))
	assert.Contains(t, err.Error(), "exited with code 2")
	assert.Contains(t, err.Error(), "corrupted state")
}

func TestProcessMemoryLimit(t *testing.T) {
	cfg := processConfig(t, 10*time.Second)
	cfg.MemoryLimitMB = 16
	d := newDispatcher(t, cfg)
	_, err := d.Submit(context.Background(), "hog", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnitFault))
	assert.Contains(t, err.Error(), fmt.Sprintf("exited with code %d", worker.ExitMemory))
}

func TestProcessCarriesFunctionSource(t *testing.T) {
	d := newDispatcher(t, processConfig(t, 5*time.Second))
	res, err := d.Submit(context.Background(), "call", map[string]any{"fn": transfer.Source("function () { return 1; }")})
	require.NoError(t, err)
	assert.Equal(t, "transfer.Source", res.Resolve)
}

func TestProcessUnitDoesNotInheritSecrets(t *testing.T) {
	t.Setenv("KEY", "s3cret")
	cfg := processConfig(t, 5*time.Second)
	cfg.WorkerEnv = append(cfg.WorkerEnv, "RENDER_METHOD=static")
	d := newDispatcher(t, cfg)

	res, err := d.Submit(context.Background(), "env", map[string]any{"name": "KEY"})
	require.NoError(t, err)
	assert.Equal(t, "", res.Resolve)

	res, err = d.Submit(context.Background(), "env", map[string]any{"name": "RENDER_METHOD"})
	require.NoError(t, err)
	assert.Equal(t, "static", res.Resolve)
}

func TestProcessRejectsLiveCallables(t *testing.T) {
	d := newDispatcher(t, processConfig(t, 5*time.Second))
	_, err := d.Submit(context.Background(), "echo", map[string]any{"value": func() {}})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTransfer))
}

func TestConcurrencyIsBounded(t *testing.T) {
	cfg := threadConfig(5 * time.Second)
	cfg.Units = 2
	tasks := dispatcher.NewRegistry()
	var running, peak atomic.Int32
	tasks.Register("work", func(ctx context.Context, p map[string]any) (any, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})
	d, err := dispatcher.New(cfg, tasks, dispatcher.WithLogger(logging.Nop()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Submit(context.Background(), "work", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWaitingForUnitTimesOut(t *testing.T) {
	cfg := threadConfig(5 * time.Second)
	cfg.Units = 1
	tasks := dispatcher.NewRegistry()
	release := make(chan struct{})
	tasks.Register("hold", func(ctx context.Context, p map[string]any) (any, error) {
		<-release
		return nil, nil
	})
	d, err := dispatcher.New(cfg, tasks, dispatcher.WithLogger(logging.Nop()))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.Submit(context.Background(), "hold", nil)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Submit(ctx, "hold", nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeTimeout))

	close(release)
	<-done
}

func TestClose(t *testing.T) {
	d := newDispatcher(t, threadConfig(time.Second))
	require.NoError(t, d.Close(context.Background()))
	_, err := d.Submit(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, dispatcher.ErrClosed)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	m, err := metrics.New(metrics.DefaultConfig())
	require.NoError(t, err)
	d := newDispatcher(t, threadConfig(50*time.Millisecond), dispatcher.WithMetrics(m))

	_, _ = d.Submit(context.Background(), "echo", nil)
	_, _ = d.Submit(context.Background(), "block", nil)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "template_service_jobs_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" {
					got[l.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"resolved": 1, "timeout": 1}, got)
}
