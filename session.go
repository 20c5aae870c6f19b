package kvcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/kvcache/backend"
	"github.com/unkn0wn-root/kvcache/internal/counter"
)

// NoExpiry is what GetTTL reports for a live key without a TTL.
const NoExpiry = backend.NoExpiry

// SetOption tunes Set and SetIfNotExists.
type SetOption func(*setOptions)

type setOptions struct{ ttl time.Duration }

// WithExpiry gives the key a time to live. d <= 0 means no expiry.
func WithExpiry(d time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = d }
}

// IncrOption tunes Increment.
type IncrOption func(*incrOptions)

type incrOptions struct{ by, initial int64 }

// By sets the step (default 1).
func By(n int64) IncrOption { return func(o *incrOptions) { o.by = n } }

// Initial sets the value a missing counter is created with (default 0).
func Initial(n int64) IncrOption { return func(o *incrOptions) { o.initial = n } }

// Session is a blocking view of the cache bound to one backend connection.
// Operations on a session are serialized in call order.
//
// Every operation checks ctx before it starts and fails with ctx.Err() if it
// is already done. Once started, an operation runs to completion regardless
// of cancellation; deadlines on the network are the client's own timeouts.
type Session struct {
	c    *Cache
	id   string
	log  Logger
	kind backend.Kind

	mu     sync.Mutex
	conn   backend.Conn
	closed bool
}

// OpenSession acquires a connection. The caller must Close the session;
// prefer SyncSession, which does that on every path.
func (c *Cache) OpenSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := c.backend.Acquire(ctx)
	if err != nil {
		c.log.Error("acquire failed", Fields{"err": err})
		return nil, err
	}
	id := uuid.NewString()
	s := &Session{
		c:    c,
		id:   id,
		log:  c.log.With(Fields{"session": id}),
		kind: c.backend.Kind(),
		conn: conn,
	}
	s.log.Debug("session opened", nil)
	return s, nil
}

// ID is a random identifier used in logs.
func (s *Session) ID() string { return s.id }

// Close releases the connection. Idempotent. Never undoes writes.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.conn.Release()
	if err != nil {
		s.c.hooks.ReleaseFailed(s.kind, err)
		s.log.Warn("release failed", Fields{"err": err})
		return err
	}
	s.log.Debug("session released", nil)
	return nil
}

// do runs one operation against the connection under the session lock.
func (s *Session) do(ctx context.Context, op, key string, checkKey bool, fn func(context.Context, backend.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if checkKey && key == "" {
		return &OpError{Op: op, Kind: ErrInvalidKey}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &OpError{Op: op, Key: key, Kind: ErrClosed}
	}

	start := time.Now()
	err := fn(context.WithoutCancel(ctx), s.conn)
	s.c.hooks.OpCompleted(op, time.Since(start), err)
	if err != nil && errors.Is(err, ErrBackendUnavailable) {
		s.log.Error("backend unavailable", Fields{"op": op, "err": err})
	}
	return err
}

// Set stores value under key, replacing any previous value and TTL.
func (s *Session) Set(ctx context.Context, key string, value any, opts ...SetOption) (bool, error) {
	o := applySet(opts)
	raw, err := s.c.codec.Encode(value)
	if err != nil {
		return false, &OpError{Op: "set", Key: key, Kind: ErrTypeMismatch, Err: err}
	}
	var ok bool
	err = s.do(ctx, "set", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		ok, err = c.Set(ctx, key, raw, o.ttl)
		return err
	})
	return ok, err
}

// Get returns the decoded value, or ErrKeyNotFound.
func (s *Session) Get(ctx context.Context, key string) (any, error) {
	var raw []byte
	err := s.do(ctx, "get", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		raw, err = c.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	v, err := s.c.codec.Decode(raw)
	if err != nil {
		return nil, &OpError{Op: "get", Key: key, Kind: ErrTypeMismatch, Err: err}
	}
	return v, nil
}

// Delete returns 1 when a live key was removed, 0 when there was none.
func (s *Session) Delete(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.do(ctx, "delete", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		n, err = c.Delete(ctx, key)
		return err
	})
	return n, err
}

// SetIfNotExists stores value only when key is absent. Atomic per key.
func (s *Session) SetIfNotExists(ctx context.Context, key string, value any, opts ...SetOption) (bool, error) {
	o := applySet(opts)
	raw, err := s.c.codec.Encode(value)
	if err != nil {
		return false, &OpError{Op: "setnx", Key: key, Kind: ErrTypeMismatch, Err: err}
	}
	var ok bool
	err = s.do(ctx, "setnx", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		ok, err = c.SetNX(ctx, key, raw, o.ttl)
		return err
	})
	return ok, err
}

// Increment adds By (default 1) to an integer value and returns the result.
// A missing key is created holding Initial (default 0), which is returned
// as is. Atomic per key.
func (s *Session) Increment(ctx context.Context, key string, opts ...IncrOption) (int64, error) {
	o := incrOptions{by: 1}
	for _, fn := range opts {
		fn(&o)
	}
	var n int64
	err := s.do(ctx, "incr", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		n, err = c.Increment(ctx, key, o.by, o.initial)
		return err
	})
	return n, err
}

// Counter reads a value written by Increment without going through the
// value codec.
func (s *Session) Counter(ctx context.Context, key string) (int64, error) {
	var raw []byte
	err := s.do(ctx, "counter", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		raw, err = c.Get(ctx, key)
		return err
	})
	if err != nil {
		return 0, err
	}
	n, err := counter.Parse(raw)
	if err != nil {
		return 0, &OpError{Op: "counter", Key: key, Kind: ErrTypeMismatch, Err: err}
	}
	return n, nil
}

// Expire replaces the TTL of a live key. ttl <= 0 expires it immediately.
// Returns false when the key is absent.
func (s *Session) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	err := s.do(ctx, "expire", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		ok, err = c.Expire(ctx, key, ttl)
		return err
	})
	return ok, err
}

// GetTTL returns the remaining time in whole seconds, NoExpiry for a key
// without TTL, or ErrKeyNotFound.
func (s *Session) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	var d time.Duration
	err := s.do(ctx, "ttl", key, true, func(ctx context.Context, c backend.Conn) (err error) {
		d, err = c.TTL(ctx, key)
		return err
	})
	return d, err
}

// GetKeys lists live keys matching a glob pattern (*, ?, [abc], [a-z],
// [^a], \ escapes). Order is unspecified; no match yields an empty slice.
func (s *Session) GetKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.do(ctx, "keys", pattern, false, func(ctx context.Context, c backend.Conn) (err error) {
		keys, err = c.Keys(ctx, pattern)
		return err
	})
	return keys, err
}

// DeleteKeys removes every live key matching pattern and returns the count.
// Not atomic as a whole: a failure midway keeps what was already removed.
func (s *Session) DeleteKeys(ctx context.Context, pattern string) (int64, error) {
	var n int64
	err := s.do(ctx, "delete_keys", pattern, false, func(ctx context.Context, c backend.Conn) (err error) {
		n, err = c.DeleteKeys(ctx, pattern)
		return err
	})
	if n > 0 {
		s.c.hooks.PatternDeleted(pattern, n)
	}
	return n, err
}

func applySet(opts []SetOption) setOptions {
	var o setOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
