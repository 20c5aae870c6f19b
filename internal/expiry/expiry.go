// Package expiry holds the pure TTL arithmetic shared by the in-process engines.
package expiry

import (
	"time"

	"github.com/unkn0wn-root/kvcache/backend"
)

// Clock returns the current time. Engines take one so tests can move time.
type Clock func() time.Time

// System is the wall clock.
func System() time.Time { return time.Now() }

// Or returns c, or the wall clock when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return System
	}
	return c
}

// Deadline converts a relative ttl into an absolute expiry.
// ttl <= 0 => zero time (no expiry).
func Deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Expired reports whether an entry with expiresAt is dead at now.
func Expired(now, expiresAt time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Remaining returns the TTL left, rounded half-up to whole seconds like
// Redis TTL. Unset expiry => backend.NoExpiry. Never negative.
func Remaining(now, expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return backend.NoExpiry
	}
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return left.Round(time.Second)
}
