package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToCapPerWindow(t *testing.T) {
	l := New(time.Minute, 3)
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("expected the 4th request in the window to be rejected")
	}
}

func TestLimiterResetsOnNewWindow(t *testing.T) {
	l := New(time.Minute, 1)
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	if !l.Allow("1.2.3.4") {
		t.Fatal("expected first request allowed")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("expected second request in the same window rejected")
	}

	fakeNow = fakeNow.Add(time.Minute + time.Second)
	if !l.Allow("1.2.3.4") {
		t.Fatal("expected request allowed in a new window")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New(time.Minute, 1)
	if !l.Allow("1.2.3.4") {
		t.Fatal("expected first key allowed")
	}
	if !l.Allow("5.6.7.8") {
		t.Fatal("expected a different key to have its own counter")
	}
}

func TestPruneRemovesStaleWindows(t *testing.T) {
	l := New(time.Minute, 1)
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	l.Allow("1.2.3.4")
	fakeNow = fakeNow.Add(3 * time.Minute)
	l.Prune()

	if _, ok := l.counters["1.2.3.4"]; ok {
		t.Fatal("expected stale window pruned after 2x the window duration")
	}
}
