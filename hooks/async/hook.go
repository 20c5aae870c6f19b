// Package asynchook moves kvcache hook calls off the hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{OpEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := kvcache.Open(ctx, cfg, kvcache.Options{Hooks: hooks})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/backend"
)

type Hooks struct {
	inner   kvcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ kvcache.Hooks = (*Hooks)(nil)

func New(inner kvcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) OpCompleted(op string, took time.Duration, err error) {
	h.try(func() { h.inner.OpCompleted(op, took, err) })
}
func (h *Hooks) ExpiredSwept(k backend.Kind, n int) {
	h.try(func() { h.inner.ExpiredSwept(k, n) })
}
func (h *Hooks) PatternDeleted(p string, n int64) {
	h.try(func() { h.inner.PatternDeleted(p, n) })
}
func (h *Hooks) ReleaseFailed(k backend.Kind, err error) {
	h.try(func() { h.inner.ReleaseFailed(k, err) })
}
