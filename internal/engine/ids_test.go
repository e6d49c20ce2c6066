package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ValidFormat(t *testing.T) {
	gen := UUIDv7Generator{}
	id := gen.Generate()

	assert.Len(t, id, 36)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err, "id should be valid UUID")
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	ids := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %s generated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("scope")

	assert.Equal(t, "scope-1", gen.Generate())
	assert.Equal(t, "scope-2", gen.Generate())
	assert.Equal(t, "scope-3", gen.Generate())
}
