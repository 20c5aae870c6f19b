// Package resolver hands out Cache instances built from configuration.
//
// A Resolver is an explicit registry, not a global: callers construct one at
// startup and pass it to whatever needs a cache. Persistent requests for the
// same resolved configuration share one Cache for the Resolver's lifetime.
package resolver

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/config"
)

// Loader produces the configuration a request resolves against.
type Loader func(ctx context.Context) (config.Config, error)

// EnvLoader reads the process environment, seeded from .env when present.
func EnvLoader(context.Context) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	return config.FromEnv()
}

type Options struct {
	Loader Loader         // nil => EnvLoader
	Logger kvcache.Logger // passed to every Cache
	Hooks  kvcache.Hooks  // passed to every Cache
}

type Request struct {
	// Persist returns the shared Cache for this configuration. When false a
	// fresh Cache is built and the caller owns (and closes) it.
	Persist bool

	// Config overrides the Loader for this request.
	Config *config.Config
}

type Resolver struct {
	opts Options

	mu     sync.Mutex
	caches map[string]*kvcache.Cache
	closed bool
	group  singleflight.Group
}

func New(opts Options) *Resolver {
	if opts.Loader == nil {
		opts.Loader = EnvLoader
	}
	return &Resolver{opts: opts, caches: make(map[string]*kvcache.Cache)}
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (*kvcache.Cache, error) {
	cfg, err := r.load(ctx, req)
	if err != nil {
		return nil, err
	}
	if !req.Persist {
		return r.open(ctx, cfg)
	}

	sig := cfg.Signature()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, kvcache.ErrClosed
	}
	if c, ok := r.caches[sig]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(sig, func() (any, error) {
		r.mu.Lock()
		if c, ok := r.caches[sig]; ok {
			r.mu.Unlock()
			return c, nil
		}
		r.mu.Unlock()

		c, err := r.open(context.WithoutCancel(ctx), cfg)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = c.Close(context.WithoutCancel(ctx))
			return nil, kvcache.ErrClosed
		}
		r.caches[sig] = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*kvcache.Cache), nil
}

// Close closes every persistent Cache. Caches from non-persistent requests
// belong to their callers.
func (r *Resolver) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	caches := r.caches
	r.caches = make(map[string]*kvcache.Cache)
	r.mu.Unlock()

	var errs []error
	for _, c := range caches {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) load(ctx context.Context, req Request) (config.Config, error) {
	var cfg config.Config
	if req.Config != nil {
		cfg = *req.Config
	} else {
		var err error
		if cfg, err = r.opts.Loader(ctx); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (r *Resolver) open(ctx context.Context, cfg config.Config) (*kvcache.Cache, error) {
	return kvcache.Open(ctx, cfg, kvcache.Options{Logger: r.opts.Logger, Hooks: r.opts.Hooks})
}
