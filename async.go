package kvcache

import (
	"context"
	"sync"
	"time"
)

// Future is the pending result of an AsyncSession operation.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] { return &Future[T]{done: make(chan struct{})} }

func (f *Future[T]) resolve(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the operation finishes or ctx is done. Giving up on a
// Future does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncSession is the non-blocking view of a Session. Each call returns
// immediately with a Future; the operations themselves run one at a time on
// a single worker, in the order they were issued.
type AsyncSession struct {
	s *Session

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closing bool
	stopped chan struct{}
}

// OpenAsyncSession acquires a connection and starts the session worker.
// The caller must Close it; prefer Cache.AsyncSession.
func (c *Cache) OpenAsyncSession(ctx context.Context) (*AsyncSession, error) {
	s, err := c.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	a := &AsyncSession{s: s, stopped: make(chan struct{})}
	a.cond = sync.NewCond(&a.mu)
	go a.run()
	return a, nil
}

func (a *AsyncSession) ID() string { return a.s.ID() }

func (a *AsyncSession) run() {
	defer close(a.stopped)
	for {
		a.mu.Lock()
		for len(a.queue) == 0 && !a.closing {
			a.cond.Wait()
		}
		if len(a.queue) == 0 {
			a.mu.Unlock()
			return
		}
		job := a.queue[0]
		a.queue[0] = nil
		a.queue = a.queue[1:]
		a.mu.Unlock()

		job()
	}
}

// Close waits for queued operations to finish, then releases the connection.
// If ctx ends first the connection is released once the queue drains.
func (a *AsyncSession) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closing = true
	a.cond.Broadcast()
	a.mu.Unlock()

	select {
	case <-a.stopped:
		return a.s.Close()
	case <-ctx.Done():
		go func() {
			<-a.stopped
			_ = a.s.Close()
		}()
		return ctx.Err()
	}
}

// submit queues fn. The ctx check happens when the worker reaches the job,
// inside Session.do.
func submit[T any](a *AsyncSession, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		var zero T
		f.resolve(zero, &OpError{Op: "submit", Kind: ErrClosed})
		return f
	}
	a.queue = append(a.queue, func() { f.resolve(fn()) })
	a.cond.Signal()
	a.mu.Unlock()
	return f
}

func (a *AsyncSession) Set(ctx context.Context, key string, value any, opts ...SetOption) *Future[bool] {
	return submit(a, func() (bool, error) { return a.s.Set(ctx, key, value, opts...) })
}

func (a *AsyncSession) Get(ctx context.Context, key string) *Future[any] {
	return submit(a, func() (any, error) { return a.s.Get(ctx, key) })
}

func (a *AsyncSession) Delete(ctx context.Context, key string) *Future[int64] {
	return submit(a, func() (int64, error) { return a.s.Delete(ctx, key) })
}

func (a *AsyncSession) SetIfNotExists(ctx context.Context, key string, value any, opts ...SetOption) *Future[bool] {
	return submit(a, func() (bool, error) { return a.s.SetIfNotExists(ctx, key, value, opts...) })
}

func (a *AsyncSession) Increment(ctx context.Context, key string, opts ...IncrOption) *Future[int64] {
	return submit(a, func() (int64, error) { return a.s.Increment(ctx, key, opts...) })
}

func (a *AsyncSession) Counter(ctx context.Context, key string) *Future[int64] {
	return submit(a, func() (int64, error) { return a.s.Counter(ctx, key) })
}

func (a *AsyncSession) Expire(ctx context.Context, key string, ttl time.Duration) *Future[bool] {
	return submit(a, func() (bool, error) { return a.s.Expire(ctx, key, ttl) })
}

func (a *AsyncSession) GetTTL(ctx context.Context, key string) *Future[time.Duration] {
	return submit(a, func() (time.Duration, error) { return a.s.GetTTL(ctx, key) })
}

func (a *AsyncSession) GetKeys(ctx context.Context, pattern string) *Future[[]string] {
	return submit(a, func() ([]string, error) { return a.s.GetKeys(ctx, pattern) })
}

func (a *AsyncSession) DeleteKeys(ctx context.Context, pattern string) *Future[int64] {
	return submit(a, func() (int64, error) { return a.s.DeleteKeys(ctx, pattern) })
}
