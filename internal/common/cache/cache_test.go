package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCompileCachesSuccess(t *testing.T) {
	c := New(time.Minute, time.Minute, 10)
	calls := 0
	compile := func() (interface{}, error) {
		calls++
		return "compiled", nil
	}

	v, err := c.GetOrCompile("k", compile)
	require.NoError(t, err)
	assert.Equal(t, "compiled", v)

	v, err = c.GetOrCompile("k", compile)
	require.NoError(t, err)
	assert.Equal(t, "compiled", v)
	assert.Equal(t, 1, calls)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats["hits"])
}

func TestGetOrCompileDoesNotCacheFailure(t *testing.T) {
	c := New(time.Minute, time.Minute, 10)
	boom := errors.New("syntax error")

	_, err := c.GetOrCompile("bad", func() (interface{}, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestSetRespectsMaxItems(t *testing.T) {
	c := New(time.Minute, time.Minute, 3)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		assert.LessOrEqual(t, c.Len(), 3)
	}
}

func TestNilCacheIsUsable(t *testing.T) {
	var c *Cache
	v, err := c.GetOrCompile("k", func() (interface{}, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, c.Len())
}
