package cache

import (
	"context"
	"testing"
	"time"
)

type payload struct {
	Value string `json:"value"`
}

func TestFacadeSetThenGet(t *testing.T) {
	backend := NewMemoryBackend(0)
	defer backend.Close()
	f := NewFacade(backend, 0)

	key := NewCacheKey(KeyTask).WithID("t1")
	if err := f.Set(context.Background(), key, payload{Value: "hi"}); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	var out payload
	hit, err := f.Get(context.Background(), key, &out)
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if out.Value != "hi" {
		t.Fatalf("expected value 'hi', got %q", out.Value)
	}
}

func TestFacadeGetOrSetLoadsOnMiss(t *testing.T) {
	backend := NewMemoryBackend(0)
	defer backend.Close()
	f := NewFacade(backend, 0)
	key := NewCacheKey(KeyTask).WithID("t2")

	calls := 0
	var out payload
	err := f.GetOrSet(context.Background(), key, &out, func(ctx context.Context) (any, error) {
		calls++
		return payload{Value: "loaded"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != "loaded" || calls != 1 {
		t.Fatalf("expected one loader call producing 'loaded', got calls=%d out=%+v", calls, out)
	}

	var out2 payload
	err = f.GetOrSet(context.Background(), key, &out2, func(ctx context.Context) (any, error) {
		calls++
		return payload{Value: "should-not-run"}, nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected cached hit to skip loader, calls=%d", calls)
	}
}

func TestFacadeMaxEntrySize(t *testing.T) {
	backend := NewMemoryBackend(0)
	defer backend.Close()
	f := NewFacade(backend, 4) // tiny limit

	key := NewCacheKey(KeyTask).WithID("t3")
	err := f.Set(context.Background(), key, payload{Value: "this is definitely too long"})
	if err == nil {
		t.Fatalf("expected error for entry exceeding max_entry_size")
	}
}

func TestFacadeTagInvalidation(t *testing.T) {
	backend := NewMemoryBackend(0)
	defer backend.Close()
	f := NewFacade(backend, 0)

	key := NewCacheKey(KeyTask).WithID("t4").WithTag("dag:d1")
	f.Set(context.Background(), key, payload{Value: "x"})

	if err := f.InvalidateTag(context.Background(), "dag:d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out payload
	hit, _ := f.Get(context.Background(), key, &out)
	if hit {
		t.Fatalf("expected tag invalidation to evict the entry")
	}
}

func TestMultiTierReadThroughFillsL1(t *testing.T) {
	l1 := NewMemoryBackend(0)
	l2 := NewMemoryBackend(0)
	defer l1.Close()
	defer l2.Close()
	mt := NewMultiTier(l1, l2)

	l2.Set(context.Background(), "k", []byte("v"), time.Minute)

	val, ok, err := mt.Get(context.Background(), "k")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("expected L2 hit to surface through MultiTier, got ok=%v err=%v", ok, err)
	}

	l1Val, l1Ok, _ := l1.Get(context.Background(), "k")
	if !l1Ok || string(l1Val) != "v" {
		t.Fatalf("expected read-through to populate L1")
	}
}
