package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	OK         bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects generation attempts per client key.
type Limiter interface {
	Allow(key string, now time.Time) Decision
}

// FixedWindow counts attempts per key inside a fixed window that starts at
// the key's first attempt. Attempts are counted on entry: a run that later
// fails still consumes one slot.
type FixedWindow struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	start time.Time
	count int
}

// NewFixedWindow builds a limiter allowing max attempts per window for each
// key. max < 1 disables limiting.
func NewFixedWindow(max int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		max:     max,
		window:  window,
		entries: make(map[string]*windowEntry),
	}
}

func (l *FixedWindow) Allow(key string, now time.Time) Decision {
	if l.max < 1 {
		return Decision{OK: true, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.Sub(e.start) >= l.window {
		e = &windowEntry{start: now}
		l.entries[key] = e
	}

	if e.count >= l.max {
		return Decision{
			OK:         false,
			Count:      e.count,
			Remaining:  0,
			RetryAfter: e.start.Add(l.window).Sub(now),
		}
	}

	e.count++
	return Decision{
		OK:        true,
		Count:     e.count,
		Remaining: l.max - e.count,
	}
}

// Sweep drops windows that have expired. Callers run it periodically so the
// per-key map does not grow without bound.
func (l *FixedWindow) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if now.Sub(e.start) >= l.window {
			delete(l.entries, key)
		}
	}
}

var _ Limiter = (*FixedWindow)(nil)
