package kvcache

import "github.com/unkn0wn-root/kvcache/backend"

// Error taxonomy shared by every backend. Match with errors.Is.
var (
	ErrKeyNotFound        = backend.ErrKeyNotFound
	ErrTypeMismatch       = backend.ErrTypeMismatch
	ErrBackendUnavailable = backend.ErrBackendUnavailable
	ErrTimeout            = backend.ErrTimeout // also matches ErrBackendUnavailable
	ErrConfiguration      = backend.ErrConfiguration
	ErrInvalidKey         = backend.ErrInvalidKey
	ErrClosed             = backend.ErrClosed
)

// OpError records the operation and key that failed.
type OpError = backend.OpError
