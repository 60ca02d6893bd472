package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaStaleRefAfterRecycle(t *testing.T) {
	arena := NewArena(4)

	_, ref := arena.Alloc()
	require.True(t, arena.Release(ref))

	// the slot is recycled under a new generation
	_, ref2 := arena.Alloc()
	assert.Equal(t, ref.Index, ref2.Index)
	assert.NotEqual(t, ref.Gen, ref2.Gen)

	_, ok := arena.Get(ref)
	assert.False(t, ok, "stale reference must not resolve")
	_, ok = arena.Get(ref2)
	assert.True(t, ok)

	// double release through the stale reference is a no-op
	assert.False(t, arena.Release(ref))
	assert.Equal(t, 1, arena.Live())
}

func TestArenaGrowsBeyondInitialCapacity(t *testing.T) {
	arena := NewArena(2)
	refs := make([]Ref, 0, 10)
	for i := 0; i < 10; i++ {
		o, ref := arena.Alloc()
		require.NotNil(t, o)
		require.Equal(t, ref, o.Ref())
		refs = append(refs, ref)
	}
	assert.Equal(t, 10, arena.Live())

	for _, ref := range refs {
		require.True(t, arena.Release(ref))
	}
	assert.Equal(t, 0, arena.Live())
}

func TestArenaZeroRefNeverResolves(t *testing.T) {
	arena := NewArena(4)
	arena.Alloc()

	var zero Ref
	assert.True(t, zero.IsZero())
	_, ok := arena.Get(zero)
	assert.False(t, ok)
	assert.False(t, arena.Release(zero))
}
