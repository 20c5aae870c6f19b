// Package sloghooks reports kvcache events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/backend"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	OpEvery    uint64
	SweepEvery uint64
	// Operations slower than this are logged at Warn regardless of sampling. 0 disables.
	SlowOp time.Duration
	// Optional pattern redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	opCtr    atomic.Uint64
	sweepCtr atomic.Uint64
}

var _ kvcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) OpCompleted(op string, took time.Duration, err error) {
	if h.l == nil {
		return
	}
	switch {
	case err != nil && !errors.Is(err, kvcache.ErrKeyNotFound):
		h.l.Warn("kvcache.op_failed", "op", op, "took", took, "err", err)
	case h.opts.SlowOp > 0 && took >= h.opts.SlowOp:
		h.l.Warn("kvcache.op_slow", "op", op, "took", took)
	case sample(h.opts.OpEvery, &h.opCtr):
		h.l.Debug("kvcache.op", "op", op, "took", took, "miss", err != nil)
	}
}

func (h *Hooks) ExpiredSwept(kind backend.Kind, removed int) {
	if h.l == nil || !sample(h.opts.SweepEvery, &h.sweepCtr) {
		return
	}
	h.l.Debug("kvcache.expired_swept",
		"backend", kind.String(),
		"removed", removed)
}

func (h *Hooks) PatternDeleted(pattern string, deleted int64) {
	if h.l == nil {
		return
	}
	h.l.Info("kvcache.pattern_deleted",
		"pattern", h.redact(pattern),
		"deleted", deleted)
}

func (h *Hooks) ReleaseFailed(kind backend.Kind, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("kvcache.release_failed",
		"backend", kind.String(),
		"err", err)
}
