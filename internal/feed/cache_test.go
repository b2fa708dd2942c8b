package feed

import (
	"testing"
	"time"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestCache_PutAndGet(t *testing.T) {
	c := NewCache()
	c.Put("k", []byte("v"), time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get: expected hit, got miss")
	}
	if string(got) != "v" {
		t.Errorf("Get: got %q, want v", got)
	}
}

func TestCache_Miss(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get("absent"); ok {
		t.Fatal("Get on empty cache: expected miss")
	}
}

func TestCache_Expiry(t *testing.T) {
	base := time.Now()
	c := NewCache()

	c.now = fixedClock(base)
	c.Put("k", []byte("v"), time.Minute)

	// Still live just before the deadline.
	c.now = fixedClock(base.Add(59 * time.Second))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Get before expiry: expected hit")
	}

	// Expired exactly at the deadline.
	c.now = fixedClock(base.Add(time.Minute))
	if _, ok := c.Get("k"); ok {
		t.Fatal("Get at expiry: expected miss")
	}

	// The expired entry was dropped on access.
	if c.Len() != 0 {
		t.Errorf("Len after expired access: got %d, want 0", c.Len())
	}
}

func TestCache_ZeroTTLStoresNothing(t *testing.T) {
	c := NewCache()
	c.Put("k", []byte("v"), 0)
	if c.Len() != 0 {
		t.Errorf("Len after zero-ttl Put: got %d, want 0", c.Len())
	}
}

func TestCache_Reset(t *testing.T) {
	c := NewCache()
	c.Put("a", []byte("1"), time.Minute)
	c.Put("b", []byte("2"), time.Minute)

	c.Reset()

	if c.Len() != 0 {
		t.Errorf("Len after Reset: got %d, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Get after Reset: expected miss")
	}
}

func TestCache_Overwrite(t *testing.T) {
	c := NewCache()
	c.Put("k", []byte("old"), time.Minute)
	c.Put("k", []byte("new"), time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get: expected hit")
	}
	if string(got) != "new" {
		t.Errorf("Get: got %q, want new", got)
	}
}
