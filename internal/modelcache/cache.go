// Package modelcache keeps a bounded set of loaded model handles, evicting
// by least-recent access. Concurrent loads of the same key collapse into one
// loader invocation.
package modelcache

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Hardik94/shabdabhav/internal/apierr"
	"github.com/Hardik94/shabdabhav/internal/metrics"
)

// DefaultCapacity bounds the cache when the caller passes 0.
const DefaultCapacity = 2

// ReleaseFunc frees whatever resources a handle holds. It runs before the
// handle is dropped on eviction.
type ReleaseFunc func()

// LoaderFunc produces a handle and its release hook.
type LoaderFunc func(ctx context.Context) (any, ReleaseFunc, error)

type entry struct {
	key     string
	handle  any
	release ReleaseFunc
}

// Cache is a mutex-guarded LRU of loaded models. The lock is never held
// across a loader invocation; concurrent Get calls for a missing key park on
// the same single-flight and share its result.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	group    singleflight.Group
}

// New creates a cache bounded to capacity handles.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the cached handle for key, loading it with load on a miss.
// A failed load is propagated to every waiter and never cached; retrying is
// the caller's decision.
func (c *Cache) Get(ctx context.Context, key string, load LoaderFunc) (any, error) {
	if h, ok := c.lookup(key); ok {
		metrics.CacheHits.Inc()
		return h, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A previous flight may have inserted the key while we queued.
		if h, ok := c.lookup(key); ok {
			metrics.CacheHits.Inc()
			return h, nil
		}
		handle, release, err := load(ctx)
		if err != nil {
			// Loader failures that already carry a taxonomy kind (missing
			// artifact, missing dependency) keep it; anything else is a
			// load failure.
			var ae *apierr.Error
			if errors.As(err, &ae) {
				return nil, err
			}
			return nil, apierr.Wrap(apierr.LoadFailed, err, "load %s", key)
		}
		metrics.CacheLoads.Inc()
		c.insert(key, handle, release)
		return handle, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Len reports the number of resident handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Purge evicts everything, running release hooks.
func (c *Cache) Purge() {
	c.mu.Lock()
	var evicted []*entry
	for el := c.ll.Back(); el != nil; el = c.ll.Back() {
		evicted = append(evicted, c.remove(el))
	}
	c.mu.Unlock()
	for _, e := range evicted {
		if e.release != nil {
			e.release()
		}
	}
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).handle, true
}

func (c *Cache) insert(key string, handle any, release ReleaseFunc) {
	c.mu.Lock()
	var evicted []*entry
	for c.ll.Len() >= c.capacity {
		evicted = append(evicted, c.remove(c.ll.Back()))
	}
	el := c.ll.PushFront(&entry{key: key, handle: handle, release: release})
	c.items[key] = el
	c.mu.Unlock()

	// Release hooks can be slow (GPU frees); run them outside the lock.
	for _, e := range evicted {
		metrics.CacheEvictions.Inc()
		if e.release != nil {
			e.release()
		}
	}
}

// remove unlinks el; the caller holds the lock and runs the release hook.
func (c *Cache) remove(el *list.Element) *entry {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	return e
}
