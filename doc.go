// Package kvcache is a key-value cache with one API over interchangeable
// stores: an in-process map (INMEMORY), bigcache (BIGCACHE) and any
// Redis-compatible server (REDIS).
//
// Components:
//   - Backend: byte store with TTL, atomic counters and glob scans (package backend).
//   - Codec[any]: (de)serializes session values <-> []byte (package codec).
//   - Session / AsyncSession: scoped, ordered access bound to one backend connection.
//
// Scoped use:
//
//	err := cache.SyncSession(ctx, func(s *kvcache.Session) error {
//	    if _, err := s.Set(ctx, "user:1", map[string]any{"name": "alice"}, kvcache.WithExpiry(time.Minute)); err != nil {
//	        return err
//	    }
//	    n, err := s.Increment(ctx, "visits")
//	    ...
//	})
//
// Sessions are not transactions. An error returned from the scope is
// propagated after the connection is released, and nothing already written
// is undone.
//
// Counters are stored as base-10 integers. Through the default JSON codec
// Get returns them as float64, through the binary codecs as int64. Counter
// reads them exactly with any codec.
package kvcache
