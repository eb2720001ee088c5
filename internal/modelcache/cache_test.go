package modelcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingLoader(loads *atomic.Int32, handle any, release ReleaseFunc) LoaderFunc {
	return func(ctx context.Context) (any, ReleaseFunc, error) {
		loads.Add(1)
		return handle, release, nil
	}
}

func TestGet_LRUEviction(t *testing.T) {
	t.Parallel()
	cache := New(2)

	var loads atomic.Int32
	var releasedA atomic.Int32
	releaseA := func() { releasedA.Add(1) }

	keys := []struct {
		key     string
		release ReleaseFunc
	}{
		{"A", releaseA},
		{"B", nil},
		{"C", nil},
	}
	for _, k := range keys {
		if _, err := cache.Get(context.Background(), k.key, countingLoader(&loads, k.key, k.release)); err != nil {
			t.Fatalf("get %s: %v", k.key, err)
		}
	}

	if got := cache.Len(); got != 2 {
		t.Errorf("len = %d, want 2", got)
	}
	if got := loads.Load(); got != 3 {
		t.Errorf("loads = %d, want 3", got)
	}
	if got := releasedA.Load(); got != 1 {
		t.Errorf("A released %d times, want exactly 1", got)
	}

	// B and C are resident: hits must not invoke the loader again.
	for _, key := range []string{"B", "C"} {
		h, err := cache.Get(context.Background(), key, countingLoader(&loads, key, nil))
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if h != any(key) {
			t.Errorf("get %s returned %v", key, h)
		}
	}
	if got := loads.Load(); got != 3 {
		t.Errorf("loads after hits = %d, want 3", got)
	}
}

func TestGet_SingleFlight(t *testing.T) {
	t.Parallel()
	cache := New(2)

	var loads atomic.Int32
	slowLoader := func(ctx context.Context) (any, ReleaseFunc, error) {
		loads.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "handle-A", nil, nil
	}

	const callers = 10
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cache.Get(context.Background(), "A", slowLoader)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			results[i] = h
		}(i)
	}
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("loader invoked %d times, want 1", got)
	}
	for i, h := range results {
		if h != any("handle-A") {
			t.Errorf("caller %d got %v, want handle-A", i, h)
		}
	}
}

func TestGet_CapacityNeverExceeded(t *testing.T) {
	t.Parallel()
	cache := New(2)
	for _, key := range []string{"a", "b", "c", "d", "e", "b", "a"} {
		cache.Get(context.Background(), key, func(ctx context.Context) (any, ReleaseFunc, error) {
			return key, nil, nil
		})
		if got := cache.Len(); got > 2 {
			t.Fatalf("len = %d after %s, want <= 2", got, key)
		}
	}
}

func TestGet_LoadFailureNotCached(t *testing.T) {
	t.Parallel()
	cache := New(2)

	errBoom := errors.New("boom")
	var loads atomic.Int32
	failing := func(ctx context.Context) (any, ReleaseFunc, error) {
		loads.Add(1)
		return nil, nil, errBoom
	}

	if _, err := cache.Get(context.Background(), "A", failing); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if got := cache.Len(); got != 0 {
		t.Errorf("len = %d after failed load, want 0", got)
	}

	// The cache never retries on its own, but a fresh Get may.
	if _, err := cache.Get(context.Background(), "A", failing); !errors.Is(err, errBoom) {
		t.Fatalf("second err = %v, want wrapped boom", err)
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("loads = %d, want 2 (one per Get)", got)
	}
}

func TestPurge_RunsReleaseHooks(t *testing.T) {
	t.Parallel()
	cache := New(4)
	var released atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		cache.Get(context.Background(), key, func(ctx context.Context) (any, ReleaseFunc, error) {
			return key, func() { released.Add(1) }, nil
		})
	}
	cache.Purge()
	if got := released.Load(); got != 3 {
		t.Errorf("released %d handles, want 3", got)
	}
	if got := cache.Len(); got != 0 {
		t.Errorf("len = %d after purge, want 0", got)
	}
}
