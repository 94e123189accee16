package cache

import (
	"testing"
	"time"
)

func TestGetOrCreateSingleInstance(t *testing.T) {
	c := New[int](10, time.Minute)

	builds := 0
	build := func() int { builds++; return 42 }

	v, created := c.GetOrCreate("k", build)
	if v != 42 || !created {
		t.Fatalf("first GetOrCreate = %d, %v", v, created)
	}
	v, created = c.GetOrCreate("k", build)
	if v != 42 || created {
		t.Fatalf("second GetOrCreate = %d, %v", v, created)
	}
	if builds != 1 {
		t.Errorf("build ran %d times, want 1", builds)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a") // a is now most recent
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b survived eviction, want dropped")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a evicted despite recent use")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[string](10, 10*time.Millisecond)

	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry still returned")
	}
	c.Set("x", "1")
	c.Set("y", "2")
	time.Sleep(20 * time.Millisecond)
	if n := c.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired() = %d, want 2", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after clean, want 0", c.Size())
	}
}

func TestDelete(t *testing.T) {
	c := New[int](10, time.Minute)
	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted entry still returned")
	}
	c.Delete("never-existed") // must not panic
}
