package kvcache

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/kvcache/backend"
	"github.com/unkn0wn-root/kvcache/backend/bigcache"
	"github.com/unkn0wn-root/kvcache/backend/memory"
	"github.com/unkn0wn-root/kvcache/backend/redis"
	"github.com/unkn0wn-root/kvcache/codec"
	"github.com/unkn0wn-root/kvcache/config"
)

// Open builds the backend and codec described by cfg. opts supplies Logger
// and Hooks; its Backend and Codec fields are ignored.
//
// Open does not contact a remote server. An unreachable Redis surfaces as
// ErrBackendUnavailable when the first session is opened.
func Open(_ context.Context, cfg config.Config, opts Options) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cd, err := codec.ByName(cfg.Codec, cfg.MaxValueBytes)
	if err != nil {
		return nil, err
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}

	be, err := openBackend(cfg, hooks)
	if err != nil {
		return nil, err
	}
	opts.Backend = be
	opts.Codec = cd
	opts.Hooks = hooks
	return New(opts)
}

func openBackend(cfg config.Config, hooks Hooks) (backend.Backend, error) {
	switch cfg.Backend {
	case backend.KindInMemory:
		return memory.New(memory.Config{
			SweepInterval: cfg.Memory.SweepInterval,
			MaxPatterns:   cfg.Memory.MaxPatterns,
			OnSweep:       func(n int) { hooks.ExpiredSwept(backend.KindInMemory, n) },
		})
	case backend.KindBigCache:
		return bigcache.New(bigcache.Config{
			Shards:             cfg.BigCache.Shards,
			MaxEntriesInWindow: cfg.BigCache.MaxEntriesInWindow,
			MaxEntrySize:       cfg.BigCache.MaxEntrySize,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
			SweepInterval:      cfg.BigCache.SweepInterval,
			MaxPatterns:        cfg.BigCache.MaxPatterns,
			OnSweep:            func(n int) { hooks.ExpiredSwept(backend.KindBigCache, n) },
		})
	case backend.KindRedis:
		ro, err := redisOptions(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return redis.New(redis.Config{
			Client:      goredis.NewClient(ro),
			CloseClient: true,
			ScanCount:   cfg.Redis.ScanCount,
		})
	default:
		return nil, fmt.Errorf("backend %q: %w", cfg.Backend, ErrConfiguration)
	}
}

func redisOptions(rc config.Redis) (*goredis.Options, error) {
	ro := &goredis.Options{Addr: rc.Addr}
	if rc.URL != "" {
		parsed, err := goredis.ParseURL(rc.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %v: %w", err, ErrConfiguration)
		}
		ro = parsed
	}
	if rc.Username != "" {
		ro.Username = rc.Username
	}
	if rc.Password != "" {
		ro.Password = rc.Password
	}
	if rc.URL == "" {
		ro.DB = rc.DB
	}
	if rc.DialTimeout > 0 {
		ro.DialTimeout = rc.DialTimeout
	}
	if rc.ReadTimeout > 0 {
		ro.ReadTimeout = rc.ReadTimeout
	}
	if rc.WriteTimeout > 0 {
		ro.WriteTimeout = rc.WriteTimeout
	}
	if rc.PoolSize > 0 {
		ro.PoolSize = rc.PoolSize
	}
	return ro, nil
}
