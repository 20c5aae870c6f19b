// Package redis adapts a Redis-compatible server to backend.Backend.
// Atomicity and expiry are delegated to the server; nothing is buffered locally.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/kvcache/backend"
)

var ErrNilClient = errors.New("redis backend: nil client")

const defaultScanCount = 256

// incrScript creates a missing key with the initial value (returned as a
// string, so no float round-trip through Lua) or INCRBYs a present one.
var incrScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('SET', KEYS[1], ARGV[2])
  return ARGV[2]
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool  // set true only if this backend exclusively owns the client
	ScanCount   int64 // SCAN COUNT hint; 0 => 256
}

type Backend struct {
	rdb         goredis.UniversalClient
	closeClient bool
	scanCount   int64
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	count := cfg.ScanCount
	if count <= 0 {
		count = defaultScanCount
	}
	return &Backend{rdb: cfg.Client, closeClient: cfg.CloseClient, scanCount: count}, nil
}

func (b *Backend) Kind() backend.Kind { return backend.KindRedis }

// commander is the subset of go-redis both *goredis.Conn and clients satisfy.
type commander interface {
	goredis.Scripter
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd
	TTL(ctx context.Context, key string) *goredis.DurationCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// Acquire borrows a dedicated pooled connection from a single-node client.
// Cluster and ring clients route per key, so they are used as-is.
func (b *Backend) Acquire(ctx context.Context) (backend.Conn, error) {
	client, ok := b.rdb.(*goredis.Client)
	if !ok {
		return &conn{cmd: b.rdb, scanCount: b.scanCount}, nil
	}
	cn := client.Conn()
	if err := cn.Ping(ctx).Err(); err != nil {
		_ = cn.Close()
		return nil, translate("acquire", "", err)
	}
	return &conn{cmd: cn, release: cn.Close, scanCount: b.scanCount}, nil
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (b *Backend) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type conn struct {
	cmd       commander
	release   func() error
	scanCount int64
}

var _ backend.Conn = (*conn)(nil)

func (c *conn) Release() error {
	if c.release == nil {
		return nil
	}
	rel := c.release
	c.release = nil
	if err := rel(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return translate("release", "", err)
	}
	return nil
}

func (c *conn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0 // non-positive => no expiry
	}
	if err := c.cmd.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, translate("set", key, err)
	}
	return true, nil
}

func (c *conn) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.cmd.Get(ctx, key).Bytes()
	if err != nil {
		return nil, translate("get", key, err)
	}
	return b, nil
}

func (c *conn) Delete(ctx context.Context, key string) (int64, error) {
	n, err := c.cmd.Del(ctx, key).Result()
	if err != nil {
		return 0, translate("delete", key, err)
	}
	return n, nil
}

func (c *conn) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := c.cmd.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, translate("setnx", key, err)
	}
	return ok, nil
}

func (c *conn) Increment(ctx context.Context, key string, by, initial int64) (int64, error) {
	res, err := incrScript.Run(ctx, c.cmd, []string{key}, by, initial).Result()
	if err != nil {
		return 0, translate("incr", key, err)
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, backend.TypeMismatch("incr", key, err)
		}
		return n, nil
	default:
		return 0, backend.TypeMismatch("incr", key, fmt.Errorf("unexpected reply %T", res))
	}
}

func (c *conn) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch {
	case ttl <= 0:
		// EXPIRE with a non-positive value deletes a present key and replies 1
		ok, err = c.cmd.Expire(ctx, key, 0).Result()
	case ttl%time.Second != 0:
		ok, err = c.cmd.PExpire(ctx, key, ttl).Result()
	default:
		ok, err = c.cmd.Expire(ctx, key, ttl).Result()
	}
	if err != nil {
		return false, translate("expire", key, err)
	}
	return ok, nil
}

// TTL maps the server's -2 (missing) to ErrKeyNotFound and -1 (persistent)
// to backend.NoExpiry. go-redis hands those back as raw -2ns/-1ns.
func (c *conn) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.cmd.TTL(ctx, key).Result()
	if err != nil {
		return 0, translate("ttl", key, err)
	}
	switch {
	case d == -2:
		return 0, backend.NotFound("ttl", key)
	case d == -1:
		return backend.NoExpiry, nil
	case d < 0:
		return 0, nil
	}
	return d, nil
}

func (c *conn) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	err := c.scan(ctx, pattern, func(keys []string) error {
		for _, k := range keys {
			// SCAN may return a key more than once
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		return nil
	})
	if err != nil {
		return nil, translate("keys", pattern, err)
	}
	return out, nil
}

// DeleteKeys deletes batch by batch as SCAN yields them. A failure midway
// leaves earlier batches deleted.
func (c *conn) DeleteKeys(ctx context.Context, pattern string) (int64, error) {
	var total int64
	err := c.scan(ctx, pattern, func(keys []string) error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.cmd.Del(ctx, keys...).Result()
		total += n
		return err
	})
	if err != nil {
		return total, translate("delete_keys", pattern, err)
	}
	return total, nil
}

func (c *conn) scan(ctx context.Context, pattern string, fn func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.cmd.Scan(ctx, cursor, pattern, c.scanCount).Result()
		if err != nil {
			return err
		}
		if err := fn(keys); err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
