package gateway

import (
	"sync"
	"time"
)

// InboundLimiter caps how many frames a client may send per minute, using a
// sliding window.
type InboundLimiter struct {
	mu       sync.Mutex
	perMin   int
	received []time.Time
	now      func() time.Time
}

// NewInboundLimiter creates a limiter allowing perMinute frames per minute.
func NewInboundLimiter(perMinute int) *InboundLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &InboundLimiter{
		perMin: perMinute,
		now:    time.Now,
	}
}

// Allow records a frame and reports whether it is within the limit.
func (l *InboundLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-time.Minute)

	kept := l.received[:0]
	for _, t := range l.received {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.received = kept

	if len(l.received) >= l.perMin {
		return false
	}
	l.received = append(l.received, now)
	return true
}
