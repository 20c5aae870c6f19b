// Package sweep runs a periodic cleanup function until stopped.
package sweep

import (
	"sync"
	"time"
)

// Loop calls fn every interval on its own goroutine.
type Loop struct {
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Start returns nil when interval <= 0 (sweeping disabled).
// A nil *Loop is safe to Stop.
func Start(interval time.Duration, fn func()) *Loop {
	if interval <= 0 || fn == nil {
		return nil
	}
	l := &Loop{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.ticker.C:
				fn()
			case <-l.stopCh:
				return
			}
		}
	}()
	return l
}

// Stop halts the loop and waits for an in-progress fn to return.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		close(l.stopCh)
		l.ticker.Stop()
		l.wg.Wait()
	})
}
