package stb

import "testing"

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}

	c.Put("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Fatalf("Evictions = %d, want 1", stats.Evictions)
	}
	if stats.MaxSize != 2 || stats.Size != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLRUCacheUpdate(t *testing.T) {
	c := newLRUCache[string, int](2)
	c.Put("a", 1)
	c.Put("a", 9)
	if v, _ := c.Get("a"); v != 9 {
		t.Fatalf("Get(a) = %d, want 9", v)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestLRUCacheUnbounded(t *testing.T) {
	c := newLRUCache[int, int](0)
	for i := 0; i < 100; i++ {
		c.Put(i, i)
	}
	if c.Len() != 100 {
		t.Fatalf("Len = %d, want 100", c.Len())
	}
	if c.Stats().Evictions != 0 {
		t.Fatalf("Evictions = %d, want 0", c.Stats().Evictions)
	}
}
