package gateway

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter keyed by client identifier. The
// window resets wholesale when it elapses; there is no sliding behavior.
type rateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	clients map[string]*clientWindow

	now func() time.Time // test seam
}

type clientWindow struct {
	start time.Time
	count int
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		max:     max,
		window:  window,
		clients: make(map[string]*clientWindow),
		now:     time.Now,
	}
}

// Allow records one request for the client and reports whether it fits
// inside the current window.
func (l *rateLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[client]
	if !ok || now.Sub(w.start) >= l.window {
		l.clients[client] = &clientWindow{start: now, count: 1}
		l.cleanupLocked(now)
		return true
	}

	w.count++
	return w.count <= l.max
}

// cleanupLocked drops windows that elapsed, keeping the map bounded by
// the set of recently active clients. Must be called with the lock held.
func (l *rateLimiter) cleanupLocked(now time.Time) {
	for client, w := range l.clients {
		if now.Sub(w.start) >= l.window {
			delete(l.clients, client)
		}
	}
}
