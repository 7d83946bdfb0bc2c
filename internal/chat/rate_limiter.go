// Package chat implements a token bucket that throttles how fast one
// session may post public chat lines.
package chat

import (
	"sync"
	"time"
)

type floodGuard struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	perSec   float64
	last     time.Time
}

func newFloodGuard(burst int, refill time.Duration) *floodGuard {
	if burst <= 0 {
		burst = 1
	}
	if refill <= 0 {
		refill = time.Second
	}

	perSec := float64(burst) / refill.Seconds()
	if perSec <= 0 {
		perSec = float64(burst)
	}

	return &floodGuard{
		tokens:   float64(burst),
		capacity: float64(burst),
		perSec:   perSec,
		last:     time.Now(),
	}
}

// allow consumes one token if available, refilling the bucket for the
// time elapsed since the last call.
func (g *floodGuard) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(g.last).Seconds()
	g.last = now

	if elapsed > 0 {
		g.tokens += elapsed * g.perSec
		if g.tokens > g.capacity {
			g.tokens = g.capacity
		}
	}

	if g.tokens < 1 {
		return false
	}

	g.tokens--
	return true
}
