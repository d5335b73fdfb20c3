package jobs

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	s := NewStore()
	assert.Equal(t, Unknown, s.Lookup(0).State)
	assert.Equal(t, Unknown, s.Lookup(1).State)

	id := s.Allocate()
	assert.Equal(t, 1, id)
	assert.Equal(t, Pending, s.Lookup(id).State)
	assert.Nil(t, s.Lookup(id).Result)

	require.NoError(t, s.Resolve(id, json.RawMessage(`"ok"`)))
	j := s.Lookup(id)
	assert.Equal(t, Resolved, j.State)
	assert.JSONEq(t, `"ok"`, string(j.Result))
	assert.False(t, j.ResolvedAt.Before(j.Created))

	assert.ErrorIs(t, s.Resolve(id, json.RawMessage(`"again"`)), ErrAlreadyResolved)
	assert.JSONEq(t, `"ok"`, string(s.Lookup(id).Result))
	assert.ErrorIs(t, s.Resolve(7, nil), ErrUnknownJob)
	assert.ErrorIs(t, s.Resolve(0, nil), ErrUnknownJob)
}

func TestAllocateIsUniqueAcrossGoroutines(t *testing.T) {
	s := NewStore()
	const n = 64
	ids := make(chan int, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.Allocate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Equal(t, n, s.Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "unknown", Unknown.String())
}
