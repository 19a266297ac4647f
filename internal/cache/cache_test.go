package cache

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newClockedCache(size int, ttl time.Duration) (*LRUCache[string], *clock) {
	clk := &clock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	return NewLRUCache[string](size, ttl).WithClock(clk.now), clk
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newClockedCache(2, time.Minute)
	c.Set("a", "1")

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) should miss")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newClockedCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a was recently used and should remain")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clk := newClockedCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", "2b")
	clk.t = clk.t.Add(30 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should be expired at exactly its TTL")
	}
	if v, ok := c.Get("b"); !ok || v != "2b" {
		t.Errorf("b = %q, %v; the overwrite should reset its TTL", v, ok)
	}

	clk.t = clk.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_DeleteAndPurge(t *testing.T) {
	c, _ := newClockedCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	if c.Size() != 1 {
		t.Fatalf("Size() = %d after delete", c.Size())
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("Size() = %d after purge", c.Size())
	}
	c.Set("c", "3")
	if _, ok := c.Get("c"); !ok {
		t.Error("cache unusable after purge")
	}
}

func TestManager_CleansAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, clk := newClockedCache(10, time.Minute)
	c.Set("a", "1")
	clk.t = clk.t.Add(2 * time.Minute)

	m := NewManager()
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow() = %d, want 1", n)
	}

	m.StartCleanup(10 * time.Millisecond)
	m.StartCleanup(10 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Stop()
}
