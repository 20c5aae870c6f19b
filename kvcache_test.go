package kvcache

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/kvcache/backend"
	"github.com/unkn0wn-root/kvcache/backend/backendtest"
	"github.com/unkn0wn-root/kvcache/backend/bigcache"
	"github.com/unkn0wn-root/kvcache/backend/memory"
	"github.com/unkn0wn-root/kvcache/config"
)

type harness struct {
	cache   *Cache
	advance func(time.Duration)
}

func newHarnesses(t *testing.T) map[string]func(t *testing.T) harness {
	return map[string]func(t *testing.T) harness{
		"memory": func(t *testing.T) harness {
			clk := backendtest.NewClock()
			be, err := memory.New(memory.Config{Now: clk.Now, SweepInterval: -1})
			if err != nil {
				t.Fatalf("memory.New: %v", err)
			}
			return harness{cache: mustNew(t, Options{Backend: be}), advance: clk.Advance}
		},
		"bigcache": func(t *testing.T) harness {
			clk := backendtest.NewClock()
			be, err := bigcache.New(bigcache.Config{Now: clk.Now, SweepInterval: -1, Shards: 16})
			if err != nil {
				t.Fatalf("bigcache.New: %v", err)
			}
			return harness{cache: mustNew(t, Options{Backend: be}), advance: clk.Advance}
		},
		"redis": func(t *testing.T) harness {
			srv := miniredis.RunT(t)
			cfg := config.Default()
			cfg.Backend = backend.KindRedis
			cfg.Redis.Addr = srv.Addr()
			c, err := Open(context.Background(), cfg, Options{})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			t.Cleanup(func() { _ = c.Close(context.Background()) })
			return harness{cache: c, advance: srv.FastForward}
		},
	}
}

func mustNew(t *testing.T, opts Options) *Cache {
	t.Helper()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func forEachBackend(t *testing.T, fn func(t *testing.T, h harness)) {
	for name, mk := range newHarnesses(t) {
		mk := mk
		t.Run(name, func(t *testing.T) { fn(t, mk(t)) })
	}
}

func TestNeverSetKey(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		err := h.cache.SyncSession(ctx, func(s *Session) error {
			if _, err := s.Get(ctx, "never"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("Get: expected ErrKeyNotFound, got %v", err)
			}
			n, err := s.Delete(ctx, "never")
			if err != nil || n != 0 {
				t.Fatalf("Delete: n=%d err=%v", n, err)
			}
			if _, err := s.GetTTL(ctx, "never"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("GetTTL: expected ErrKeyNotFound, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("session: %v", err)
		}
	})
}

func TestRoundTripValues(t *testing.T) {
	ctx := context.Background()
	values := map[string]any{
		"scalar": "hello",
		"number": float64(12.5),
		"flat":   map[string]any{"name": "alice", "age": float64(30)},
		"nested": map[string]any{
			"user":  map[string]any{"id": "u1", "roles": []any{"admin", "dev"}},
			"flags": map[string]any{"beta": true},
		},
	}
	forEachBackend(t, func(t *testing.T, h harness) {
		err := h.cache.SyncSession(ctx, func(s *Session) error {
			for k, v := range values {
				ok, err := s.Set(ctx, k, v)
				if err != nil || !ok {
					t.Fatalf("Set %s: ok=%v err=%v", k, ok, err)
				}
				got, err := s.Get(ctx, k)
				if err != nil {
					t.Fatalf("Get %s: %v", k, err)
				}
				if !reflect.DeepEqual(got, v) {
					t.Fatalf("%s: got %#v want %#v", k, got, v)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("session: %v", err)
		}
	})
}

func TestSetIfNotExistsKeepsFirst(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			ok, err := s.SetIfNotExists(ctx, "lock", "first")
			if err != nil || !ok {
				t.Fatalf("first SetIfNotExists: ok=%v err=%v", ok, err)
			}
			ok, err = s.SetIfNotExists(ctx, "lock", "second")
			if err != nil || ok {
				t.Fatalf("second SetIfNotExists: ok=%v err=%v", ok, err)
			}
			if got, _ := s.Get(ctx, "lock"); got != "first" {
				t.Fatalf("value replaced: %v", got)
			}
			return nil
		})
	})
}

func TestIncrementThenGetPerCodec(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		codec  string
		asRead func(int64) any
	}{
		{"json", func(n int64) any { return float64(n) }},
		{"cbor", func(n int64) any { return n }},
		{"msgpack", func(n int64) any { return n }},
		{"protobuf", func(n int64) any { return n }},
	}
	for _, tc := range cases {
		for _, kind := range []backend.Kind{backend.KindInMemory, backend.KindRedis} {
			t.Run(tc.codec+"/"+string(kind), func(t *testing.T) {
				cfg := config.Default()
				cfg.Backend = kind
				cfg.Codec = tc.codec
				cfg.Memory.SweepInterval = -1
				if kind == backend.KindRedis {
					cfg.Redis.Addr = miniredis.RunT(t).Addr()
				}
				c, err := Open(ctx, cfg, Options{})
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				t.Cleanup(func() { _ = c.Close(ctx) })

				err = c.SyncSession(ctx, func(s *Session) error {
					if _, err := s.Increment(ctx, "five", Initial(5)); err != nil {
						return err
					}
					if _, err := s.Increment(ctx, "n", Initial(5)); err != nil {
						return err
					}
					if _, err := s.Increment(ctx, "n", By(10)); err != nil {
						return err
					}
					for key, want := range map[string]int64{"five": 5, "n": 15} {
						got, err := s.Get(ctx, key)
						if err != nil {
							t.Fatalf("Get(%s): %v", key, err)
						}
						if got != tc.asRead(want) {
							t.Fatalf("Get(%s)=%#v (%T), want %d", key, got, got, want)
						}
					}

					if _, err := s.Set(ctx, "stored", 7); err != nil {
						return err
					}
					if got, err := s.Get(ctx, "stored"); err != nil || got == nil {
						t.Fatalf("Get(stored)=%#v %v", got, err)
					}
					_, err := s.Increment(ctx, "stored")
					if tc.codec == "json" {
						if err != nil {
							t.Fatalf("JSON integers are counters: %v", err)
						}
					} else if !errors.Is(err, ErrTypeMismatch) {
						t.Fatalf("Increment over an encoded value: %v", err)
					}
					return nil
				})
				if err != nil {
					t.Fatalf("session: %v", err)
				}
			})
		}
	}
}

func TestIncrementSequence(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			steps := []struct {
				opts []IncrOption
				want int64
			}{
				{nil, 0},
				{nil, 1},
				{[]IncrOption{By(3)}, 4},
			}
			for i, st := range steps {
				got, err := s.Increment(ctx, "hits", st.opts...)
				if err != nil || got != st.want {
					t.Fatalf("step %d: got %d err=%v, want %d", i, got, err, st.want)
				}
			}
			if n, err := s.Counter(ctx, "hits"); err != nil || n != 4 {
				t.Fatalf("Counter: %d %v", n, err)
			}
			if v, err := s.Get(ctx, "hits"); err != nil || v != float64(4) {
				t.Fatalf("counter through JSON: %#v %v", v, err)
			}
			if got, _ := s.Increment(ctx, "seeded", Initial(10), By(5)); got != 10 {
				t.Fatalf("missing key should start at initial, got %d", got)
			}

			_, _ = s.Set(ctx, "name", "alice")
			if _, err := s.Increment(ctx, "name"); !errors.Is(err, ErrTypeMismatch) {
				t.Fatalf("expected ErrTypeMismatch, got %v", err)
			}
			return nil
		})
	})
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			_, _ = s.Set(ctx, "short", "v", WithExpiry(time.Second))
			if d, err := s.GetTTL(ctx, "short"); err != nil || d < 0 || d > time.Second {
				t.Fatalf("GetTTL: %v %v", d, err)
			}

			_, _ = s.Set(ctx, "forever", "v")
			if d, err := s.GetTTL(ctx, "forever"); err != nil || d != NoExpiry {
				t.Fatalf("persistent key ttl: %v %v", d, err)
			}
			ok, err := s.Expire(ctx, "forever", time.Second)
			if err != nil || !ok {
				t.Fatalf("Expire: ok=%v err=%v", ok, err)
			}
			if ok, _ := s.Expire(ctx, "absent", time.Second); ok {
				t.Fatalf("Expire on absent key should be false")
			}

			h.advance(1100 * time.Millisecond)

			for _, k := range []string{"short", "forever"} {
				if _, err := s.Get(ctx, k); !errors.Is(err, ErrKeyNotFound) {
					t.Fatalf("%s should be gone: %v", k, err)
				}
				if _, err := s.GetTTL(ctx, k); !errors.Is(err, ErrKeyNotFound) {
					t.Fatalf("%s ttl should be gone: %v", k, err)
				}
			}

			_, _ = s.Set(ctx, "now", "v")
			if ok, err := s.Expire(ctx, "now", 0); err != nil || !ok {
				t.Fatalf("Expire(0): ok=%v err=%v", ok, err)
			}
			if _, err := s.Get(ctx, "now"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("Expire(0) should remove the key: %v", err)
			}
			return nil
		})
	})
}

func TestPatternOperations(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			for _, k := range []string{"user:1", "user:2", "order:1"} {
				_, _ = s.Set(ctx, k, k)
			}
			keys, err := s.GetKeys(ctx, "user:*")
			if err != nil {
				t.Fatalf("GetKeys: %v", err)
			}
			sort.Strings(keys)
			if !reflect.DeepEqual(keys, []string{"user:1", "user:2"}) {
				t.Fatalf("GetKeys: %v", keys)
			}
			n, err := s.DeleteKeys(ctx, "user:*")
			if err != nil || n < 2 {
				t.Fatalf("DeleteKeys: n=%d err=%v", n, err)
			}
			keys, err = s.GetKeys(ctx, "user:*")
			if err != nil || keys == nil || len(keys) != 0 {
				t.Fatalf("expected empty non-nil slice, got %#v %v", keys, err)
			}
			if _, err := s.Get(ctx, "order:1"); err != nil {
				t.Fatalf("unrelated key removed: %v", err)
			}
			return nil
		})
	})
}

func TestErrorInScopeDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	forEachBackend(t, func(t *testing.T, h harness) {
		err := h.cache.SyncSession(ctx, func(s *Session) error {
			if _, err := s.Set(ctx, "sync", "kept"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("scope error not propagated: %v", err)
		}

		err = h.cache.AsyncSession(ctx, func(a *AsyncSession) error {
			if _, err := a.Set(ctx, "async", "kept").Wait(ctx); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("async scope error not propagated: %v", err)
		}

		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			for _, k := range []string{"sync", "async"} {
				if v, err := s.Get(ctx, k); err != nil || v != "kept" {
					t.Fatalf("%s: write was undone: %v %v", k, v, err)
				}
			}
			return nil
		})
	})
}

func TestConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			_, err := s.Increment(ctx, "counter", Initial(5))
			return err
		})

		var g errgroup.Group
		for i := 0; i < 100; i++ {
			g.Go(func() error {
				return h.cache.SyncSession(ctx, func(s *Session) error {
					_, err := s.Increment(ctx, "counter")
					return err
				})
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("increment: %v", err)
		}
		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			if n, err := s.Counter(ctx, "counter"); err != nil || n != 105 {
				t.Fatalf("expected 105, got %d %v", n, err)
			}
			return nil
		})
	})
}

func TestAsyncRunsInIssueOrder(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		err := h.cache.AsyncSession(ctx, func(a *AsyncSession) error {
			set := a.Set(ctx, "n", 5)
			incr := a.Increment(ctx, "n", By(2))
			del := a.Delete(ctx, "other")
			get := a.Counter(ctx, "n")

			if ok, err := set.Wait(ctx); err != nil || !ok {
				t.Fatalf("set: %v %v", ok, err)
			}
			if v, err := incr.Wait(ctx); err != nil || v != 7 {
				t.Fatalf("incr: %d %v", v, err)
			}
			if n, err := del.Wait(ctx); err != nil || n != 0 {
				t.Fatalf("delete: %d %v", n, err)
			}
			if v, err := get.Wait(ctx); err != nil || v != 7 {
				t.Fatalf("counter: %d %v", v, err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("async session: %v", err)
		}
	})
}

func TestAsyncCloseDrainsQueue(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, h harness) {
		var futures []*Future[int64]
		err := h.cache.AsyncSession(ctx, func(a *AsyncSession) error {
			for i := 0; i < 20; i++ {
				futures = append(futures, a.Increment(ctx, "drained"))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("async session: %v", err)
		}
		for i, f := range futures {
			select {
			case <-f.Done():
			default:
				t.Fatalf("future %d still pending after close", i)
			}
			if v, err := f.Wait(ctx); err != nil || v != int64(i) {
				t.Fatalf("future %d: %d %v", i, v, err)
			}
		}
	})
}

func TestCancelBeforeStart(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_ = h.cache.SyncSession(ctx, func(s *Session) error {
			if _, err := s.Set(cancelled, "k", "v"); !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("cancelled Set must not write: %v", err)
			}
			return nil
		})

		_ = h.cache.AsyncSession(ctx, func(a *AsyncSession) error {
			ok := a.Set(ctx, "a", "v")
			skipped := a.Set(cancelled, "b", "v")
			if _, err := ok.Wait(ctx); err != nil {
				t.Fatalf("live op: %v", err)
			}
			if _, err := skipped.Wait(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			if _, err := a.Get(ctx, "b").Wait(ctx); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("cancelled op must not run: %v", err)
			}
			return nil
		})

		if err := h.cache.SyncSession(cancelled, func(*Session) error { return nil }); !errors.Is(err, context.Canceled) {
			t.Fatalf("opening with a done ctx: %v", err)
		}
	})
}

func TestStartedOperationIgnoresLaterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	be := &countingBackend{Backend: newMemory(t)}
	be.onSet = cancel // cancel mid-operation
	c := mustNew(t, Options{Backend: be})

	_ = c.SyncSession(context.Background(), func(s *Session) error {
		if ok, err := s.Set(ctx, "k", "v"); err != nil || !ok {
			t.Fatalf("started op should finish: %v %v", ok, err)
		}
		return nil
	})
	if ctx.Err() == nil {
		t.Fatalf("cancel hook did not fire")
	}
}

func TestInvalidKeyAndClosedSession(t *testing.T) {
	ctx := context.Background()
	c := mustNew(t, Options{Backend: newMemory(t)})

	s, err := c.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := s.Set(ctx, "", "v"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("empty key: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("use after close: %v", err)
	}

	a, err := c.OpenAsyncSession(ctx)
	if err != nil {
		t.Fatalf("OpenAsyncSession: %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("async Close: %v", err)
	}
	if _, err := a.Set(ctx, "k", "v").Wait(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("async use after close: %v", err)
	}
}

func TestScopeReleasesOnEveryPath(t *testing.T) {
	ctx := context.Background()
	be := &countingBackend{Backend: newMemory(t)}
	c := mustNew(t, Options{Backend: be})

	_ = c.SyncSession(ctx, func(*Session) error { return nil })
	_ = c.SyncSession(ctx, func(*Session) error { return errors.New("fail") })
	_ = c.AsyncSession(ctx, func(*AsyncSession) error { return errors.New("fail") })
	func() {
		defer func() { _ = recover() }()
		_ = c.SyncSession(ctx, func(*Session) error { panic("boom") })
	}()

	if a, r := be.acquired.Load(), be.released.Load(); a != 4 || r != 4 {
		t.Fatalf("acquired=%d released=%d", a, r)
	}
}

func TestReleaseFailureIsReported(t *testing.T) {
	ctx := context.Background()
	relErr := errors.New("connection reset")
	be := &countingBackend{Backend: newMemory(t), releaseErr: relErr}
	rec := &recordingHooks{}
	c := mustNew(t, Options{Backend: be, Hooks: rec})

	err := c.SyncSession(ctx, func(*Session) error { return nil })
	if !errors.Is(err, relErr) {
		t.Fatalf("release error should surface when the scope succeeded: %v", err)
	}
	boom := errors.New("boom")
	if err := c.SyncSession(ctx, func(*Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("scope error should win over release error: %v", err)
	}
	if rec.releaseFailed.Load() != 2 {
		t.Fatalf("ReleaseFailed hook calls: %d", rec.releaseFailed.Load())
	}
}

func TestHooksObserveOperations(t *testing.T) {
	ctx := context.Background()
	rec := &recordingHooks{}
	c := mustNew(t, Options{Backend: newMemory(t), Hooks: rec})

	_ = c.SyncSession(ctx, func(s *Session) error {
		_, _ = s.Set(ctx, "a:1", 1)
		_, _ = s.Get(ctx, "missing")
		_, _ = s.DeleteKeys(ctx, "a:*")
		return nil
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !reflect.DeepEqual(rec.ops, []string{"set", "get", "delete_keys"}) {
		t.Fatalf("ops: %v", rec.ops)
	}
	if !errors.Is(rec.errs[1], ErrKeyNotFound) {
		t.Fatalf("miss should be reported: %v", rec.errs[1])
	}
	if rec.patternDeleted != 1 {
		t.Fatalf("PatternDeleted total: %d", rec.patternDeleted)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "memcached"
	if _, err := Open(context.Background(), cfg, Options{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := New(Options{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("New without backend: %v", err)
	}
}

func TestOpenRedisUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cfg := config.Default()
	cfg.Backend = backend.KindRedis
	cfg.Redis.Addr = addr
	cfg.Redis.DialTimeout = 200 * time.Millisecond
	c, err := Open(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Open must not dial: %v", err)
	}
	defer c.Close(context.Background())

	err = c.SyncSession(context.Background(), func(*Session) error { return nil })
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestSessionsShareStore(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []backend.Kind{backend.KindInMemory, backend.KindBigCache} {
		cfg := config.Default()
		cfg.Backend = kind
		cfg.Codec = "msgpack"
		c, err := Open(ctx, cfg, Options{})
		if err != nil {
			t.Fatalf("Open %s: %v", kind, err)
		}
		_ = c.SyncSession(ctx, func(s *Session) error {
			_, err := s.Set(ctx, "shared", map[string]any{"n": 1})
			return err
		})
		_ = c.AsyncSession(ctx, func(a *AsyncSession) error {
			v, err := a.Get(ctx, "shared").Wait(ctx)
			if err != nil || !reflect.DeepEqual(v, map[string]any{"n": int64(1)}) {
				t.Fatalf("%s: %#v %v", kind, v, err)
			}
			return nil
		})
		_ = c.Close(ctx)
	}
}

func TestRealTimeExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps")
	}
	ctx := context.Background()
	c := mustNew(t, Options{Backend: newMemory(t)})
	_ = c.SyncSession(ctx, func(s *Session) error {
		_, _ = s.Set(ctx, "k", "v", WithExpiry(time.Second))
		time.Sleep(1100 * time.Millisecond)
		if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("expected expiry: %v", err)
		}
		return nil
	})
}

// fakes

func newMemory(t *testing.T) *memory.Backend {
	t.Helper()
	be, err := memory.New(memory.Config{SweepInterval: -1})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	return be
}

type countingBackend struct {
	backend.Backend
	acquired   atomic.Int32
	released   atomic.Int32
	releaseErr error
	onSet      func()
}

func (b *countingBackend) Acquire(ctx context.Context) (backend.Conn, error) {
	c, err := b.Backend.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	b.acquired.Add(1)
	return &countingConn{Conn: c, b: b}, nil
}

type countingConn struct {
	backend.Conn
	b *countingBackend
}

func (c *countingConn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if c.b.onSet != nil {
		c.b.onSet()
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
	return c.Conn.Set(ctx, key, value, ttl)
}

func (c *countingConn) Release() error {
	c.b.released.Add(1)
	if c.b.releaseErr != nil {
		return c.b.releaseErr
	}
	return c.Conn.Release()
}

type recordingHooks struct {
	NopHooks
	mu             sync.Mutex
	ops            []string
	errs           []error
	patternDeleted int64
	releaseFailed  atomic.Int32
}

func (r *recordingHooks) OpCompleted(op string, _ time.Duration, err error) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recordingHooks) PatternDeleted(_ string, n int64) {
	r.mu.Lock()
	r.patternDeleted += n
	r.mu.Unlock()
}

func (r *recordingHooks) ReleaseFailed(backend.Kind, error) { r.releaseFailed.Add(1) }
