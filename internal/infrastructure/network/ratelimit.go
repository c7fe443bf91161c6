package network

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// endpointLimiter enforces a minimum interval between calls to the same endpoint.
// Reservations are taken under the lock so concurrent callers queue one interval apart.
type endpointLimiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	clock    clockwork.Clock
}

func newEndpointLimiter(interval time.Duration, clock clockwork.Clock) *endpointLimiter {
	return &endpointLimiter{last: make(map[string]time.Time), interval: interval, clock: clock}
}

// reserve claims the next slot for endpoint and returns how long to wait for
// it. cancel gives the slot back when the caller stops waiting; it is a no-op
// once a later reservation has queued behind it.
func (l *endpointLimiter) reserve(endpoint string) (wait time.Duration, cancel func()) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, hadPrev := l.last[endpoint]
	slot := now
	if hadPrev && l.interval > 0 {
		if allowed := prev.Add(l.interval); allowed.After(now) {
			slot = allowed
		}
	}
	l.last[endpoint] = slot

	cancel = func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.last[endpoint]; !ok || !cur.Equal(slot) {
			return
		}
		if hadPrev {
			l.last[endpoint] = prev
		} else {
			delete(l.last, endpoint)
		}
	}
	return slot.Sub(now), cancel
}

// touch records a request attempt against endpoint.
func (l *endpointLimiter) touch(endpoint string) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last[endpoint]; !ok || now.After(last) {
		l.last[endpoint] = now
	}
}

func (l *endpointLimiter) lastInvoked(endpoint string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.last[endpoint]
	return t, ok
}
