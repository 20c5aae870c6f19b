// Package bigcache runs kvcache on top of allegro/bigcache. bigcache only has
// a global life window, so each value is framed with its own created/expiry
// stamps (internal/wire) and expiry is enforced here, lazily and by sweep.
package bigcache

import (
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/kvcache/backend"
	"github.com/unkn0wn-root/kvcache/internal/counter"
	"github.com/unkn0wn-root/kvcache/internal/expiry"
	"github.com/unkn0wn-root/kvcache/internal/pattern"
	"github.com/unkn0wn-root/kvcache/internal/sweep"
	"github.com/unkn0wn-root/kvcache/internal/wire"
)

const (
	// effectively "never" for bigcache's own FIFO expiry
	lifeWindow = 10 * 365 * 24 * time.Hour

	// bigcache preallocates MaxEntriesInWindow*MaxEntrySize bytes up front;
	// its own defaults assume a 10 minute window and reserve ~300MB.
	defaultEntriesInWindow = 1 << 14
	defaultMaxEntrySize    = 256
)

type Config struct {
	Shards             int // power of two; 0 => bigcache default (1024)
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited. Non-zero makes the store lossy under pressure.
	SweepInterval      time.Duration
	MaxPatterns        int64
	Now                func() time.Time
	OnSweep            func(removed int)
}

// store is the part of *bigcache.BigCache this engine drives.
type store interface {
	Get(key string) ([]byte, error)
	Set(key string, entry []byte) error
	Delete(key string) error
	Iterator() *bc.EntryInfoIterator
	Len() int
	Close() error
}

type Backend struct {
	// mu serializes read-modify-write sequences; bigcache locks per shard only.
	mu       sync.Mutex
	c        store
	closed   bool
	now      expiry.Clock
	patterns *pattern.Compiler
	onSweep  func(int)
	loop     *sweep.Loop
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	conf := bc.DefaultConfig(lifeWindow)
	conf.CleanWindow = 0
	conf.Verbose = false
	conf.MaxEntriesInWindow = defaultEntriesInWindow
	conf.MaxEntrySize = defaultMaxEntrySize
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, &backend.OpError{Op: "open", Kind: backend.ErrConfiguration, Err: err}
	}
	patterns, err := pattern.NewCompiler(cfg.MaxPatterns)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	b := &Backend{
		c:        c,
		now:      expiry.Or(cfg.Now),
		patterns: patterns,
		onSweep:  cfg.OnSweep,
	}
	interval := cfg.SweepInterval
	if interval == 0 {
		interval = time.Minute
	}
	b.loop = sweep.Start(interval, func() { b.Sweep() })
	return b, nil
}

func (b *Backend) Kind() backend.Kind { return backend.KindBigCache }

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
	b.mu.Unlock()

	b.loop.Stop()
	b.patterns.Close()
	return b.c.Close()
}

// Sweep deletes expired and unreadable entries.
func (b *Backend) Sweep() int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	now := b.now()
	var dead []string
	b.each(func(key string, e wire.Entry, err error) {
		if err != nil || expiry.Expired(now, e.ExpiresAt) {
			dead = append(dead, key)
		}
	})
	for _, k := range dead {
		_ = b.c.Delete(k)
	}
	b.mu.Unlock()

	if len(dead) > 0 && b.onSweep != nil {
		b.onSweep(len(dead))
	}
	return len(dead)
}

// each walks every stored entry. Caller holds mu.
func (b *Backend) each(fn func(key string, e wire.Entry, err error)) {
	it := b.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		e, derr := wire.DecodeEntry(info.Value())
		fn(info.Key(), e, derr)
	}
}

// live loads key, dropping expired or corrupt entries. Caller holds mu.
func (b *Backend) live(key string, now time.Time) (wire.Entry, bool, error) {
	raw, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return wire.Entry{}, false, nil
	}
	if err != nil {
		return wire.Entry{}, false, err
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		_ = b.c.Delete(key) // self-heal
		return wire.Entry{}, false, nil
	}
	if expiry.Expired(now, e.ExpiresAt) {
		_ = b.c.Delete(key)
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

// remove deletes key, reporting whether it was there. Caller holds mu.
func (b *Backend) remove(op, key string) (bool, error) {
	err := b.c.Delete(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bc.ErrEntryNotFound):
		return false, nil
	default:
		return false, &backend.OpError{Op: op, Key: key, Kind: backend.ErrBackendUnavailable, Err: err}
	}
}

func (b *Backend) put(op, key string, e wire.Entry) error {
	if err := b.c.Set(key, wire.EncodeEntry(e)); err != nil {
		return &backend.OpError{Op: op, Key: key, Kind: backend.ErrBackendUnavailable, Err: err}
	}
	return nil
}

type conn struct{ b *Backend }

var _ backend.Conn = conn{}

func (c conn) Release() error { return nil }

// lock takes the backend mutex, failing once the backend is closed.
func (c conn) lock(op, key string) error {
	c.b.mu.Lock()
	if c.b.closed {
		c.b.mu.Unlock()
		return &backend.OpError{Op: op, Key: key, Kind: backend.ErrClosed}
	}
	return nil
}

func (c conn) unlock() { c.b.mu.Unlock() }

func (c conn) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := c.lock("set", key); err != nil {
		return false, err
	}
	defer c.unlock()
	now := c.b.now()
	if err := c.b.put("set", key, wire.Entry{CreatedAt: now, ExpiresAt: expiry.Deadline(now, ttl), Payload: value}); err != nil {
		return false, err
	}
	return true, nil
}

func (c conn) Get(_ context.Context, key string) ([]byte, error) {
	if err := c.lock("get", key); err != nil {
		return nil, err
	}
	defer c.unlock()
	e, ok, err := c.b.live(key, c.b.now())
	if err != nil {
		return nil, &backend.OpError{Op: "get", Key: key, Kind: backend.ErrBackendUnavailable, Err: err}
	}
	if !ok {
		return nil, backend.NotFound("get", key)
	}
	return e.Payload, nil
}

func (c conn) Delete(_ context.Context, key string) (int64, error) {
	if err := c.lock("delete", key); err != nil {
		return 0, err
	}
	defer c.unlock()
	_, ok, err := c.b.live(key, c.b.now())
	if err != nil {
		return 0, &backend.OpError{Op: "delete", Key: key, Kind: backend.ErrBackendUnavailable, Err: err}
	}
	if !ok {
		return 0, nil
	}
	removed, err := c.b.remove("delete", key)
	if !removed {
		return 0, err
	}
	return 1, nil
}

func (c conn) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := c.lock("setnx", key); err != nil {
		return false, err
	}
	defer c.unlock()
	now := c.b.now()
	if _, ok, _ := c.b.live(key, now); ok {
		return false, nil
	}
	if err := c.b.put("setnx", key, wire.Entry{CreatedAt: now, ExpiresAt: expiry.Deadline(now, ttl), Payload: value}); err != nil {
		return false, err
	}
	return true, nil
}

func (c conn) Increment(_ context.Context, key string, by, initial int64) (int64, error) {
	if err := c.lock("incr", key); err != nil {
		return 0, err
	}
	defer c.unlock()
	now := c.b.now()
	e, ok, _ := c.b.live(key, now)
	if !ok {
		if err := c.b.put("incr", key, wire.Entry{CreatedAt: now, Payload: counter.Format(initial)}); err != nil {
			return 0, err
		}
		return initial, nil
	}
	next, raw, err := counter.Apply(e.Payload, by)
	if err != nil {
		return 0, backend.TypeMismatch("incr", key, err)
	}
	if err := c.b.c.Set(key, wire.WithPayload(e, raw)); err != nil {
		return 0, &backend.OpError{Op: "incr", Key: key, Kind: backend.ErrBackendUnavailable, Err: err}
	}
	return next, nil
}

func (c conn) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := c.lock("expire", key); err != nil {
		return false, err
	}
	defer c.unlock()
	now := c.b.now()
	e, ok, _ := c.b.live(key, now)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		if _, err := c.b.remove("expire", key); err != nil {
			return false, err
		}
		return true, nil
	}
	e.ExpiresAt = expiry.Deadline(now, ttl)
	if err := c.b.put("expire", key, e); err != nil {
		return false, err
	}
	return true, nil
}

func (c conn) TTL(_ context.Context, key string) (time.Duration, error) {
	if err := c.lock("ttl", key); err != nil {
		return 0, err
	}
	defer c.unlock()
	now := c.b.now()
	e, ok, _ := c.b.live(key, now)
	if !ok {
		return 0, backend.NotFound("ttl", key)
	}
	return expiry.Remaining(now, e.ExpiresAt), nil
}

func (c conn) Keys(_ context.Context, pat string) ([]string, error) {
	g := c.b.patterns.Compile(pat)
	if err := c.lock("keys", pat); err != nil {
		return nil, err
	}
	defer c.unlock()
	now := c.b.now()
	out := make([]string, 0)
	c.b.each(func(key string, e wire.Entry, err error) {
		if err == nil && !expiry.Expired(now, e.ExpiresAt) && g.Match(key) {
			out = append(out, key)
		}
	})
	return out, nil
}

func (c conn) DeleteKeys(_ context.Context, pat string) (int64, error) {
	g := c.b.patterns.Compile(pat)
	if err := c.lock("delete_keys", pat); err != nil {
		return 0, err
	}
	defer c.unlock()
	now := c.b.now()
	var victims []string
	c.b.each(func(key string, e wire.Entry, err error) {
		if err == nil && !expiry.Expired(now, e.ExpiresAt) && g.Match(key) {
			victims = append(victims, key)
		}
	})
	var n int64
	for _, k := range victims {
		removed, err := c.b.remove("delete_keys", k)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}
