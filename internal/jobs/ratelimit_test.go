package jobs

import (
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(5, 15*time.Minute)
	l.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		if !l.Allow("u1") {
			t.Fatalf("attempt %d refused, want allowed", i+1)
		}
	}
	if l.Allow("u1") {
		t.Fatal("sixth attempt allowed, want refused")
	}
	if !l.Allow("u2") {
		t.Fatal("other user refused, want independent window")
	}

	current = current.Add(16 * time.Minute)
	if !l.Allow("u1") {
		t.Fatal("attempt after window refused, want allowed")
	}
}

func TestRateLimiterRejectionsDoNotCount(t *testing.T) {
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, 15*time.Minute)
	l.now = func() time.Time { return current }

	l.Allow("u1")
	l.Allow("u1")
	for i := 0; i < 10; i++ {
		if l.Allow("u1") {
			t.Fatal("over-limit attempt allowed")
		}
	}

	// Only the two accepted attempts age out; the ten rejections left no trace.
	current = current.Add(16 * time.Minute)
	if !l.Allow("u1") {
		t.Fatal("attempt after window refused")
	}
	if !l.Allow("u1") {
		t.Fatal("second attempt after window refused")
	}
}
