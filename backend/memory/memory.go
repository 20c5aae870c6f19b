// Package memory is the in-process kvcache engine: a mutex-guarded map with
// lazy expiry on every read path and a periodic sweep for active expiry.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/kvcache/backend"
	"github.com/unkn0wn-root/kvcache/internal/counter"
	"github.com/unkn0wn-root/kvcache/internal/expiry"
	"github.com/unkn0wn-root/kvcache/internal/pattern"
	"github.com/unkn0wn-root/kvcache/internal/sweep"
)

const defaultSweepInterval = time.Minute

type Config struct {
	// SweepInterval between active-expiry passes; 0 => 1m, < 0 disables sweeping.
	SweepInterval time.Duration
	// MaxPatterns bounds the compiled glob cache; 0 => 1024.
	MaxPatterns int64
	// Now overrides the clock (tests).
	Now func() time.Time
	// OnSweep is called after each sweep that reclaimed entries. Must be cheap.
	OnSweep func(removed int)
}

type entry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time // zero => no TTL
}

// Backend is safe for concurrent use. The single mutex is the only
// serialization point and is never held across a blocking call.
type Backend struct {
	mu      sync.Mutex
	entries map[string]entry
	closed  bool

	now      expiry.Clock
	patterns *pattern.Compiler
	onSweep  func(int)
	loop     *sweep.Loop
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	patterns, err := pattern.NewCompiler(cfg.MaxPatterns)
	if err != nil {
		return nil, err
	}
	b := &Backend{
		entries:  make(map[string]entry),
		now:      expiry.Or(cfg.Now),
		patterns: patterns,
		onSweep:  cfg.OnSweep,
	}
	interval := cfg.SweepInterval
	if interval == 0 {
		interval = defaultSweepInterval
	}
	b.loop = sweep.Start(interval, func() { b.Sweep() })
	return b, nil
}

func (b *Backend) Kind() backend.Kind { return backend.KindInMemory }

// Acquire hands out a view of the shared map; there is nothing to borrow.
func (b *Backend) Acquire(context.Context) (backend.Conn, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, &backend.OpError{Op: "acquire", Kind: backend.ErrClosed}
	}
	return conn{b}, nil
}

func (b *Backend) Close(context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.entries = make(map[string]entry)
	b.mu.Unlock()

	b.loop.Stop()
	b.patterns.Close()
	return nil
}

// Len counts live entries.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	n := 0
	for _, e := range b.entries {
		if !expiry.Expired(now, e.expiresAt) {
			n++
		}
	}
	return n
}

// Sweep removes every expired entry and returns how many were reclaimed.
func (b *Backend) Sweep() int {
	b.mu.Lock()
	now := b.now()
	removed := 0
	for k, e := range b.entries {
		if expiry.Expired(now, e.expiresAt) {
			delete(b.entries, k)
			removed++
		}
	}
	b.mu.Unlock()

	if removed > 0 && b.onSweep != nil {
		b.onSweep(removed)
	}
	return removed
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (b *Backend) live(key string, now time.Time) (entry, bool) {
	e, ok := b.entries[key]
	if !ok {
		return entry{}, false
	}
	if expiry.Expired(now, e.expiresAt) {
		delete(b.entries, key)
		return entry{}, false
	}
	return e, true
}

func clone(v []byte) []byte {
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

// conn adapts Backend to backend.Conn. Release is a no-op.
type conn struct{ b *Backend }

var _ backend.Conn = conn{}

func (c conn) Release() error { return nil }

func (c conn) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, &backend.OpError{Op: "set", Key: key, Kind: backend.ErrClosed}
	}
	now := b.now()
	b.entries[key] = entry{value: clone(value), createdAt: now, expiresAt: expiry.Deadline(now, ttl)}
	return true, nil
}

func (c conn) Get(_ context.Context, key string) ([]byte, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.live(key, b.now())
	if !ok {
		return nil, backend.NotFound("get", key)
	}
	return clone(e.value), nil
}

func (c conn) Delete(_ context.Context, key string) (int64, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live(key, b.now()); !ok {
		return 0, nil
	}
	delete(b.entries, key)
	return 1, nil
}

func (c conn) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, &backend.OpError{Op: "setnx", Key: key, Kind: backend.ErrClosed}
	}
	now := b.now()
	if _, ok := b.live(key, now); ok {
		return false, nil
	}
	b.entries[key] = entry{value: clone(value), createdAt: now, expiresAt: expiry.Deadline(now, ttl)}
	return true, nil
}

func (c conn) Increment(_ context.Context, key string, by, initial int64) (int64, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, &backend.OpError{Op: "incr", Key: key, Kind: backend.ErrClosed}
	}
	now := b.now()
	e, ok := b.live(key, now)
	if !ok {
		b.entries[key] = entry{value: counter.Format(initial), createdAt: now}
		return initial, nil
	}
	next, raw, err := counter.Apply(e.value, by)
	if err != nil {
		return 0, backend.TypeMismatch("incr", key, err)
	}
	e.value = raw
	b.entries[key] = e
	return next, nil
}

func (c conn) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	e, ok := b.live(key, now)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		delete(b.entries, key)
		return true, nil
	}
	e.expiresAt = expiry.Deadline(now, ttl)
	b.entries[key] = e
	return true, nil
}

func (c conn) TTL(_ context.Context, key string) (time.Duration, error) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	e, ok := b.live(key, now)
	if !ok {
		return 0, backend.NotFound("ttl", key)
	}
	return expiry.Remaining(now, e.expiresAt), nil
}

func (c conn) Keys(_ context.Context, pat string) ([]string, error) {
	b := c.b
	g := b.patterns.Compile(pat)

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	out := make([]string, 0)
	for k, e := range b.entries {
		if expiry.Expired(now, e.expiresAt) {
			delete(b.entries, k)
			continue
		}
		if g.Match(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c conn) DeleteKeys(_ context.Context, pat string) (int64, error) {
	b := c.b
	g := b.patterns.Compile(pat)

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	var n int64
	for k, e := range b.entries {
		if expiry.Expired(now, e.expiresAt) {
			delete(b.entries, k)
			continue
		}
		if g.Match(k) {
			delete(b.entries, k)
			n++
		}
	}
	return n, nil
}
