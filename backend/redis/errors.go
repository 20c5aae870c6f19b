package redis

import (
	"context"
	"errors"
	"net"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/kvcache/backend"
)

// server replies that mean the node cannot serve right now
var unavailablePrefixes = []string{"LOADING", "READONLY", "MASTERDOWN", "CLUSTERDOWN", "TRYAGAIN"}

// translate maps the go-redis error vocabulary onto the backend taxonomy.
func translate(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.Nil) {
		return backend.NotFound(op, key)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &backend.OpError{Op: op, Key: key, Kind: classify(err), Err: err}
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.ErrTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return backend.ErrTimeout
	}

	var rerr goredis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		switch {
		case strings.Contains(msg, "WRONGTYPE"),
			strings.Contains(msg, "not an integer"),
			strings.Contains(msg, "would overflow"):
			return backend.ErrTypeMismatch
		}
		for _, p := range unavailablePrefixes {
			if strings.HasPrefix(msg, p) {
				return backend.ErrBackendUnavailable
			}
		}
		return errServer
	}

	// anything that never produced a server reply: dial/io errors, closed pool
	return backend.ErrBackendUnavailable
}

// errServer is the kind for server replies outside the taxonomy (syntax
// errors, NOSCRIPT after a failed load, ...). Callers see the raw reply via Unwrap.
var errServer = errors.New("redis: server error")
