package circuitbreaker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "template-service/internal/common/errors"
	"template-service/internal/common/logging"
)

func TestBreaker(t *testing.T) {
	logger := logging.Nop()

	t.Run("basic operation", func(t *testing.T) {
		cb := New("test-basic", Config{MaxFailures: 2, Timeout: 100 * time.Millisecond, MaxConcurrentRequests: 1}, logger)

		assert.Equal(t, StateClosed, cb.State())
		assert.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("opens after failures", func(t *testing.T) {
		cb := New("test-failures", Config{MaxFailures: 3, Timeout: time.Minute, MaxConcurrentRequests: 1}, logger)

		for i := 0; i < 3; i++ {
			err := cb.Execute(func() error { return fmt.Errorf("spawn failure %d", i) })
			assert.Error(t, err)
		}
		assert.Equal(t, StateOpen, cb.State())

		err := cb.Execute(func() error {
			t.Fatal("call made while open")
			return nil
		})
		assert.ErrorIs(t, err, ErrOpen)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnitFault))
	})

	t.Run("half-open trial closes it again", func(t *testing.T) {
		cb := New("test-half-open", Config{MaxFailures: 2, Timeout: 50 * time.Millisecond, MaxConcurrentRequests: 1}, logger)

		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errors.New("failure") })
		}
		assert.Equal(t, StateOpen, cb.State())

		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, cb.State())

		assert.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("invalid config falls back to defaults", func(t *testing.T) {
		cb := New("test-invalid", Config{}, logger)
		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, "test-invalid", cb.Stats().Name)
	})
}

func TestStats(t *testing.T) {
	cb := New("stats", DefaultConfig(), logging.Nop())
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errors.New("boom") })

	stats := cb.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Successes)
}
