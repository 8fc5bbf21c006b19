// Package inflight counts running recipe streams so shutdown can wait for
// them.
package inflight

import (
	"context"
	"net/http"
	"sync"
)

// Counter tracks in-flight work that should block draining. The zero value
// is ready to use.
type Counter struct {
	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
}

// lazily create the zero channel; caller holds mu.
func (c *Counter) initLocked() {
	if c.zeroCh == nil {
		c.zeroCh = make(chan struct{})
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
}

// Inc increments the counter.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.initLocked()
	if c.count == 0 {
		c.zeroCh = make(chan struct{})
	}
	c.count++
	c.mu.Unlock()
}

// Dec decrements the counter. It never drops below zero.
func (c *Counter) Dec() {
	c.mu.Lock()
	c.initLocked()
	if c.count > 0 {
		c.count--
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	c.mu.Unlock()
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero blocks until the count is zero or ctx is done. It reports
// whether zero was reached.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	c.initLocked()
	ch := c.zeroCh
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Middleware holds the counter for the duration of each request.
func (c *Counter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Inc()
			defer c.Dec()
			next.ServeHTTP(w, r)
		})
	}
}

var streams Counter

// Streams returns the process wide counter of recipe streams.
func Streams() *Counter { return &streams }
