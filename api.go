package kvcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/kvcache/backend"
	"github.com/unkn0wn-root/kvcache/codec"
	"github.com/unkn0wn-root/kvcache/internal/util"
)

// Options configure a Cache. Only Backend is required.
type Options struct {
	Backend backend.Backend
	Codec   codec.Codec[any] // nil => JSON
	Logger  Logger           // nil => NopLogger
	Hooks   Hooks            // nil => NopHooks
}

// Cache owns one backend and one value codec. Every session opened from it
// observes the same store. Safe for concurrent use.
type Cache struct {
	backend backend.Backend
	codec   codec.Codec[any]
	log     Logger
	hooks   Hooks

	closeOnce sync.Once
	closeErr  error
}

func New(opts Options) (*Cache, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("kvcache: backend is required: %w", ErrConfiguration)
	}
	c := &Cache{
		backend: opts.Backend,
		codec:   opts.Codec,
		log:     util.Coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   util.Coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if c.codec == nil {
		c.codec = codec.JSONCodec[any]{}
	}
	c.log = c.log.With(Fields{"backend": c.backend.Kind().String()})
	return c, nil
}

// Kind reports which engine backs the cache.
func (c *Cache) Kind() backend.Kind { return c.backend.Kind() }

// Close closes the backend. Sessions still open fail with ErrClosed on their
// next operation (in-process engines) or a backend error (networked engines).
func (c *Cache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.backend.Close(ctx)
		c.log.Debug("cache closed", Fields{"err": c.closeErr})
	})
	return c.closeErr
}

// SyncSession runs fn with a blocking session. The backend connection is
// released on every exit path, including a panic in fn. An error from fn is
// returned after release; writes fn already made stay in place.
func (c *Cache) SyncSession(ctx context.Context, fn func(*Session) error) (err error) {
	s, err := c.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// AsyncSession runs fn with a non-blocking session. Operations fn queued but
// did not wait for are finished before the connection is released.
func (c *Cache) AsyncSession(ctx context.Context, fn func(*AsyncSession) error) (err error) {
	a, err := c.OpenAsyncSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
