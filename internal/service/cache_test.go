package service

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c := NewTTLCache[int](5 * time.Minute)
	c.SetClock(func() time.Time { return now })

	if _, ok := c.Get(); ok {
		t.Fatal("empty cache reported a fresh value")
	}

	c.Set(42)
	if v, ok := c.Get(); !ok || v != 42 {
		t.Fatalf("got %d/%t, want 42 fresh", v, ok)
	}

	// Still fresh exactly at the TTL boundary.
	now = now.Add(5 * time.Minute)
	if _, ok := c.Get(); !ok {
		t.Fatal("value expired at the boundary instead of past it")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get(); ok {
		t.Fatal("value survived past its TTL")
	}
}

func TestTTLCacheClear(t *testing.T) {
	c := NewTTLCache[string](time.Hour)
	c.Set("summary")
	c.Clear()
	if _, ok := c.Get(); ok {
		t.Fatal("cleared cache still served a value")
	}
}
