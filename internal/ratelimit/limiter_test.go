package ratelimit

import (
	"testing"
	"time"
)

func TestFixedWindowBoundary(t *testing.T) {
	l := NewFixedWindow(3, time.Hour)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	want := []bool{true, true, true, false}
	for i, ok := range want {
		d := l.Allow("203.0.113.1", now.Add(time.Duration(i)*time.Minute))
		if d.OK != ok {
			t.Fatalf("request %d: got ok=%v want %v", i+1, d.OK, ok)
		}
	}
}

func TestFixedWindowRemaining(t *testing.T) {
	l := NewFixedWindow(3, time.Hour)
	now := time.Now()

	d := l.Allow("k", now)
	if d.Count != 1 || d.Remaining != 2 {
		t.Fatalf("first request: count=%d remaining=%d", d.Count, d.Remaining)
	}
	l.Allow("k", now)
	d = l.Allow("k", now)
	if d.Remaining != 0 {
		t.Fatalf("third request: remaining=%d want 0", d.Remaining)
	}
}

func TestFixedWindowResets(t *testing.T) {
	l := NewFixedWindow(1, time.Hour)
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if d := l.Allow("k", start); !d.OK {
		t.Fatal("first request rejected")
	}
	if d := l.Allow("k", start.Add(30*time.Minute)); d.OK {
		t.Fatal("second request inside window admitted")
	}
	if d := l.Allow("k", start.Add(time.Hour)); !d.OK {
		t.Fatal("request after window reset rejected")
	}
}

func TestFixedWindowRetryAfter(t *testing.T) {
	l := NewFixedWindow(1, time.Hour)
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	l.Allow("k", start)
	d := l.Allow("k", start.Add(15*time.Minute))
	if d.OK {
		t.Fatal("expected rejection")
	}
	if d.RetryAfter != 45*time.Minute {
		t.Fatalf("retry after = %s, want 45m", d.RetryAfter)
	}
}

func TestFixedWindowKeysIndependent(t *testing.T) {
	l := NewFixedWindow(1, time.Hour)
	now := time.Now()

	if d := l.Allow("a", now); !d.OK {
		t.Fatal("key a rejected")
	}
	if d := l.Allow("b", now); !d.OK {
		t.Fatal("key b rejected after key a consumed its budget")
	}
}

func TestFixedWindowDisabled(t *testing.T) {
	l := NewFixedWindow(0, time.Hour)
	now := time.Now()
	for i := 0; i < 10; i++ {
		if d := l.Allow("k", now); !d.OK {
			t.Fatalf("request %d rejected with limiting disabled", i+1)
		}
	}
}

func TestSweepDropsExpiredWindows(t *testing.T) {
	l := NewFixedWindow(1, time.Hour)
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	l.Allow("stale", start)
	l.Allow("fresh", start.Add(30*time.Minute))
	l.Sweep(start.Add(time.Hour))

	if _, ok := l.entries["stale"]; ok {
		t.Fatal("expired window not swept")
	}
	if _, ok := l.entries["fresh"]; !ok {
		t.Fatal("active window swept")
	}
}
