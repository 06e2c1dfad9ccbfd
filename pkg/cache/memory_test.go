package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got string
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	var got string
	if err := c.Get(ctx, "absent", &got); err != ErrCacheMiss {
		t.Fatalf("expected miss, got %v", err)
	}

	if err := c.Set(ctx, "short", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := c.Get(ctx, "short", &got); err != ErrCacheMiss {
		t.Fatalf("expected expiry miss, got %v", err)
	}
}

func TestMemoryCacheStructRoundTrip(t *testing.T) {
	type payload struct {
		Name  string
		Score float64
	}

	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	in := payload{Name: "alpha", Score: 0.9}
	if err := c.Set(ctx, "p", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out payload
	if err := c.Get(ctx, "p", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestMemoryCacheEvictsOldestWhenFull(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, time.Minute)
	time.Sleep(2 * time.Millisecond)
	_ = c.Set(ctx, "b", 2, time.Minute)
	time.Sleep(2 * time.Millisecond)
	_ = c.Set(ctx, "c", 3, time.Minute)

	var v int
	if err := c.Get(ctx, "a", &v); err != ErrCacheMiss {
		t.Fatalf("oldest entry should be evicted, got %v", err)
	}
	if err := c.Get(ctx, "c", &v); err != nil {
		t.Fatalf("newest entry evicted: %v", err)
	}
}

func TestCacheKeyComposition(t *testing.T) {
	got := Key("decision", "AAPL", int64(42))
	want := "decision:AAPL:42"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
