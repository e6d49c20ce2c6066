package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_StartsAtZero(t *testing.T) {
	c := NewCounter()
	assert.Equal(t, int64(0), c.Current())
}

func TestCounter_NextIncrementsMonotonically(t *testing.T) {
	c := NewCounter()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(1), c.Current())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(3), c.Next())
	assert.Equal(t, int64(3), c.Current())
}

func TestCounter_Reset(t *testing.T) {
	c := NewCounter()
	c.Next()
	c.Next()

	c.Reset()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
}

func TestCounter_ThreadSafe(t *testing.T) {
	c := NewCounter()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	results := make([][]int64, goroutines)
	for i := range goroutines {
		results[i] = make([]int64, calls)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := range calls {
				results[idx][j] = c.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, rs := range results {
		for _, v := range rs {
			require.False(t, seen[v], "duplicate value %d", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestDiscardLogger(t *testing.T) {
	log := DiscardLogger()
	require.NotNil(t, log)
	log.Info("dropped", "key", "value")
}
