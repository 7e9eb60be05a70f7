package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRU[string](2, time.Minute)

	_, ok, err := c.Get(ctx, Key{GroupID: "g", Fingerprint: "a"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, Key{GroupID: "g", Fingerprint: "a"}, "one"))
	v, ok, err := c.Get(ctx, Key{GroupID: "g", Fingerprint: "a"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	// Same group, different fingerprint is a different entry.
	_, ok, _ = c.Get(ctx, Key{GroupID: "g", Fingerprint: "b"})
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRU[int](2, time.Minute)
	a, b, d := Key{"g", "a"}, Key{"g", "b"}, Key{"g", "d"}

	require.NoError(t, c.Set(ctx, a, 1))
	require.NoError(t, c.Set(ctx, b, 2))
	_, _, _ = c.Get(ctx, a) // a becomes most recently used
	require.NoError(t, c.Set(ctx, d, 3))

	assert.Equal(t, 2, c.Size())
	_, ok, _ := c.Get(ctx, b)
	assert.False(t, ok, "b should have been evicted")
	_, ok, _ = c.Get(ctx, a)
	assert.True(t, ok)
}

func TestLRU_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := NewLRU[int](10, time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, Key{"g", "a"}, 1))
	require.NoError(t, c.Set(ctx, Key{"g", "b"}, 2))

	now = now.Add(30 * time.Second)
	_, ok, _ := c.Get(ctx, Key{"g", "a"})
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, Key{"g", "a"})
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Cache[int] = Nop[int]{}
	require.NoError(t, c.Set(ctx, Key{"g", "a"}, 1))
	_, ok, err := c.Get(ctx, Key{"g", "a"})
	require.NoError(t, err)
	assert.False(t, ok)
}
