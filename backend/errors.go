package backend

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound        = errors.New("kvcache: key not found")
	ErrTypeMismatch       = errors.New("kvcache: value type mismatch")
	ErrBackendUnavailable = errors.New("kvcache: backend unavailable")
	ErrConfiguration      = errors.New("kvcache: configuration error")
	ErrInvalidKey         = errors.New("kvcache: invalid key")
	ErrClosed             = errors.New("kvcache: closed")

	// ErrTimeout also matches ErrBackendUnavailable.
	ErrTimeout error = timeoutError{}
)

type timeoutError struct{}

func (timeoutError) Error() string        { return "kvcache: backend timeout" }
func (timeoutError) Timeout() bool        { return true }
func (timeoutError) Is(target error) bool { return target == ErrBackendUnavailable }

// OpError records the operation and key that failed.
// Kind is one of the sentinels above; Err is the native cause, if any.
type OpError struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	switch {
	case e.Key != "" && e.Err != nil:
		return fmt.Sprintf("%s %q: %v: %v", e.Op, e.Key, e.Kind, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NotFound is a shorthand for the most common failure.
func NotFound(op, key string) error {
	return &OpError{Op: op, Key: key, Kind: ErrKeyNotFound}
}

// TypeMismatch reports a stored value that cannot serve op.
func TypeMismatch(op, key string, cause error) error {
	return &OpError{Op: op, Key: key, Kind: ErrTypeMismatch, Err: cause}
}
