// Package backend defines the storage contract shared by every kvcache engine.
//
// A Backend is a long-lived store. Callers never talk to it directly: a
// session Acquires a Conn, issues operations through it and Releases it on
// exit. For in-process engines the Conn is the store itself; for networked
// engines it wraps a connection borrowed from the client's pool.
//
// Values are opaque bytes. Implementations must be byte-for-byte transparent:
// Get returns exactly the bytes previously passed to Set. The only exception is
// Increment, which stores base-10 signed integers ("42", "-7") the same way
// Redis INCRBY does.
package backend

import (
	"context"
	"time"
)

// NoExpiry is returned by Conn.TTL for live keys that have no TTL.
const NoExpiry time.Duration = -1

// Kind names a backend implementation in configuration.
type Kind string

const (
	KindInMemory Kind = "INMEMORY"
	KindRedis    Kind = "REDIS"
	KindBigCache Kind = "BIGCACHE"
)

func (k Kind) String() string { return string(k) }

// Backend owns a store for the lifetime of a Cache.
// Must be safe for concurrent use.
type Backend interface {
	Kind() Kind

	// Acquire returns a Conn scoped to one session. The caller must Release it.
	Acquire(ctx context.Context) (Conn, error)

	// Close releases the store. Idempotent.
	Close(ctx context.Context) error
}

// Conn is the operation surface of a backend, bound to one session.
//
// Expired keys behave as absent on every path. A ttl <= 0 on Set/SetNX means
// "no expiry"; on Expire it expires the key immediately.
type Conn interface {
	// Set stores value and replaces any previous value and TTL. Returns true on success.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns ErrKeyNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete returns 1 when a live key was removed, 0 otherwise.
	Delete(ctx context.Context, key string) (int64, error)

	// SetNX stores value only when the key is absent or expired.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Increment creates a missing key holding initial and returns initial
	// without applying by. A present key gets += by and the new value is
	// returned. Non-integer values fail with ErrTypeMismatch.
	Increment(ctx context.Context, key string, by, initial int64) (int64, error)

	// Expire replaces the TTL of a live key. Returns false for absent keys.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining whole seconds, NoExpiry, or ErrKeyNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys returns every live key matching a glob pattern. Order is unspecified.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// DeleteKeys removes every live key matching pattern and returns the count.
	// Atomic per key only.
	DeleteKeys(ctx context.Context, pattern string) (int64, error)

	// Release returns borrowed resources. Never undoes writes.
	Release() error
}
