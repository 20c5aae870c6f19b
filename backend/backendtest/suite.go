// Package backendtest is a conformance suite every backend.Backend must pass.
// Engines run it from their own tests with a harness that can move time.
package backendtest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/kvcache/backend"
)

// Harness is a fresh backend plus a way to move its notion of time forward.
type Harness struct {
	Backend backend.Backend
	Advance func(d time.Duration)
}

// Clock is a manually driven clock for in-process engines.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Unix(1_700_000_000, 0)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Run executes the suite. newHarness is called once per subtest.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	cases := []struct {
		name string
		fn   func(t *testing.T, h Harness)
	}{
		{"MissingKey", testMissingKey},
		{"SetGetOverwrite", testSetGetOverwrite},
		{"SetNX", testSetNX},
		{"SetNXAfterExpiry", testSetNXAfterExpiry},
		{"IncrementSemantics", testIncrementSemantics},
		{"IncrementKeepsTTL", testIncrementKeepsTTL},
		{"IncrementTypeMismatch", testIncrementTypeMismatch},
		{"TTLExpiry", testTTLExpiry},
		{"Expire", testExpire},
		{"KeysAndDeleteKeys", testKeysAndDeleteKeys},
		{"KeysSkipExpired", testKeysSkipExpired},
		{"ConcurrentIncrement", testConcurrentIncrement},
		{"ConcurrentSetNX", testConcurrentSetNX},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			t.Cleanup(func() { _ = h.Backend.Close(context.Background()) })
			tc.fn(t, h)
		})
	}
}

func acquire(t *testing.T, h Harness) backend.Conn {
	t.Helper()
	c, err := h.Backend.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Release() })
	return c
}

func testMissingKey(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrKeyNotFound)

	n, err := c.Delete(ctx, "missing")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	_, err = c.TTL(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrKeyNotFound)

	ok, err := c.Expire(ctx, "missing", time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}

func testSetGetOverwrite(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	ok, err := c.Set(ctx, "a", []byte(`{"name":"Alice"}`), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, `{"name":"Alice"}`, string(got))

	// overwrite replaces value and drops the TTL
	ok, err = c.Set(ctx, "a", []byte(`"Bee"`), 0)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, `"Bee"`, string(got))

	ttl, err := c.TTL(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, backend.NoExpiry, ttl)

	n, err := c.Delete(ctx, "a")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = c.Get(ctx, "a")
	require.ErrorIs(t, err, backend.ErrKeyNotFound)
}

func testSetNX(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	ok, err := c.SetNX(ctx, "b", []byte("v1"), 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.SetNX(ctx, "b", []byte("v2"), 0)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := c.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))
}

func testSetNXAfterExpiry(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	ok, err := c.SetNX(ctx, "lock", []byte("first"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	h.Advance(1100 * time.Millisecond)

	ok, err = c.SetNX(ctx, "lock", []byte("second"), 0)
	require.NoError(t, err)
	require.True(t, ok, "expired key must count as absent")

	got, err := c.Get(ctx, "lock")
	require.NoError(t, err)
	require.Equal(t, "second", string(got))
}

func testIncrementSemantics(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	n, err := c.Increment(ctx, "cnt", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "first call returns the initial value")

	n, err = c.Increment(ctx, "cnt", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = c.Increment(ctx, "cnt", 3, 0)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)

	n, err = c.Increment(ctx, "cnt", -5, 0)
	require.NoError(t, err)
	require.EqualValues(t, -1, n)

	n, err = c.Increment(ctx, "seeded", 5, 10)
	require.NoError(t, err)
	require.EqualValues(t, 10, n)
	n, err = c.Increment(ctx, "seeded", 5, 10)
	require.NoError(t, err)
	require.EqualValues(t, 15, n)

	raw, err := c.Get(ctx, "seeded")
	require.NoError(t, err)
	require.Equal(t, "15", string(raw))

	// a value written by Set that happens to be an integer is a counter too
	_, err = c.Set(ctx, "plain", []byte("41"), 0)
	require.NoError(t, err)
	n, err = c.Increment(ctx, "plain", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
}

func testIncrementKeepsTTL(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	_, err := c.Set(ctx, "hits", []byte("1"), 10*time.Second)
	require.NoError(t, err)

	n, err := c.Increment(ctx, "hits", 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	ttl, err := c.TTL(ctx, "hits")
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, 10*time.Second)
}

func testIncrementTypeMismatch(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	_, err := c.Set(ctx, "name", []byte(`"alice"`), 0)
	require.NoError(t, err)

	_, err = c.Increment(ctx, "name", 1, 0)
	require.ErrorIs(t, err, backend.ErrTypeMismatch)

	got, err := c.Get(ctx, "name")
	require.NoError(t, err)
	require.Equal(t, `"alice"`, string(got), "failed increment must not mutate")

	_, err = c.Set(ctx, "float", []byte("1.5"), 0)
	require.NoError(t, err)
	_, err = c.Increment(ctx, "float", 1, 0)
	require.ErrorIs(t, err, backend.ErrTypeMismatch)
}

func testTTLExpiry(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	ok, err := c.Set(ctx, "t", []byte("v"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ttl, err := c.TTL(ctx, "t")
	require.NoError(t, err)
	require.GreaterOrEqual(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, time.Second)

	h.Advance(1100 * time.Millisecond)

	_, err = c.Get(ctx, "t")
	require.ErrorIs(t, err, backend.ErrKeyNotFound)
	_, err = c.TTL(ctx, "t")
	require.ErrorIs(t, err, backend.ErrKeyNotFound)

	n, err := c.Delete(ctx, "t")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func testExpire(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	_, err := c.Set(ctx, "u", []byte("v"), 0)
	require.NoError(t, err)

	ttl, err := c.TTL(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, backend.NoExpiry, ttl)

	ok, err := c.Expire(ctx, "u", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	h.Advance(1100 * time.Millisecond)

	_, err = c.Get(ctx, "u")
	require.ErrorIs(t, err, backend.ErrKeyNotFound)

	ok, err = c.Expire(ctx, "u", time.Second)
	require.NoError(t, err)
	require.False(t, ok, "expire on an expired key")

	_, err = c.Set(ctx, "w", []byte("v"), 0)
	require.NoError(t, err)
	ok, err = c.Expire(ctx, "w", 0)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = c.Get(ctx, "w")
	require.ErrorIs(t, err, backend.ErrKeyNotFound, "ttl 0 expires immediately")
}

func testKeysAndDeleteKeys(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	for _, k := range []string{"user:1", "user:2", "order:1", "user-x"} {
		_, err := c.Set(ctx, k, []byte("x"), 0)
		require.NoError(t, err)
	}

	keys, err := c.Keys(ctx, "user:*")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"user:1", "user:2"}, keys)

	keys, err = c.Keys(ctx, "user?1")
	require.NoError(t, err)
	require.Equal(t, []string{"user:1"}, keys)

	keys, err = c.Keys(ctx, "user[-:]*")
	require.NoError(t, err)
	require.Len(t, keys, 3)

	// a leading '!' in a class is a literal, not a negation
	for _, k := range []string{"a", "b", "!"} {
		_, err := c.Set(ctx, k, []byte("x"), 0)
		require.NoError(t, err)
	}
	keys, err = c.Keys(ctx, "[!a]")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"!", "a"}, keys)

	keys, err = c.Keys(ctx, "[^!a]")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys)

	n, err := c.DeleteKeys(ctx, "user:*")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	keys, err = c.Keys(ctx, "user:*")
	require.NoError(t, err)
	require.NotNil(t, keys)
	require.Empty(t, keys)

	n, err = c.DeleteKeys(ctx, "nothing:*")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	_, err = c.Get(ctx, "order:1")
	require.NoError(t, err, "non-matching keys survive")
}

func testKeysSkipExpired(t *testing.T, h Harness) {
	ctx := context.Background()
	c := acquire(t, h)

	_, err := c.Set(ctx, "s:live", []byte("x"), 0)
	require.NoError(t, err)
	_, err = c.Set(ctx, "s:dying", []byte("x"), time.Second)
	require.NoError(t, err)

	h.Advance(1100 * time.Millisecond)

	keys, err := c.Keys(ctx, "s:*")
	require.NoError(t, err)
	require.Equal(t, []string{"s:live"}, keys)

	n, err := c.DeleteKeys(ctx, "s:*")
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "expired keys are not counted")
}

func testConcurrentIncrement(t *testing.T, h Harness) {
	const callers = 100

	// seed so every caller below increments rather than initializes
	seed := acquire(t, h)
	n, err := seed.Increment(context.Background(), "hits", 1, 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			ctx := context.Background()
			c, err := h.Backend.Acquire(ctx)
			if err != nil {
				return err
			}
			defer c.Release()
			_, err = c.Increment(ctx, "hits", 1, 7)
			return err
		})
	}
	require.NoError(t, g.Wait())

	raw, err := seed.Get(context.Background(), "hits")
	require.NoError(t, err)
	require.Equal(t, "107", string(raw))
}

func testConcurrentSetNX(t *testing.T, h Harness) {
	const callers = 50

	var (
		g   errgroup.Group
		mu  sync.Mutex
		won int
	)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			ctx := context.Background()
			c, err := h.Backend.Acquire(ctx)
			if err != nil {
				return err
			}
			defer c.Release()
			ok, err := c.SetNX(ctx, "leader", []byte("me"), 0)
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, won, "exactly one caller may win set-if-not-exists")
}
