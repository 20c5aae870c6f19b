package kvcache

import (
	"time"

	"github.com/unkn0wn-root/kvcache/backend"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A session operation finished. err is nil on success; a miss reports
	// ErrKeyNotFound. op ∈ {"set","get","delete","setnx","incr","expire","ttl","keys","delete_keys","counter"}.
	OpCompleted(op string, took time.Duration, err error)

	// An in-process engine reclaimed expired entries in a background sweep.
	ExpiredSwept(kind backend.Kind, removed int)

	// DeleteKeys removed deleted keys matching pattern.
	PatternDeleted(pattern string, deleted int64)

	// Returning a session's connection failed (likely backend outage).
	ReleaseFailed(kind backend.Kind, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) OpCompleted(string, time.Duration, error) {}
func (NopHooks) ExpiredSwept(backend.Kind, int)           {}
func (NopHooks) PatternDeleted(string, int64)             {}
func (NopHooks) ReleaseFailed(backend.Kind, error)        {}
