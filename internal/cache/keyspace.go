package cache

import (
	"context"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoadFunc loads the value for a missing key. found=false is cached as a
// negative entry; an error is returned to every waiting caller and not cached.
type LoadFunc[V any] func(ctx context.Context) (v V, found bool, err error)

type entry[V any] struct {
	value V
	found bool
}

// Keyspace is a bounded cache in which concurrent misses on the same key
// share a single load.
//
// Every invalidation bumps a generation counter. A load records the
// generation it started under and stores its result only if no invalidation
// happened meanwhile, so a load racing a commit never caches stale data.
type Keyspace[V any] struct {
	name    string
	metrics *Metrics

	mu    sync.Mutex
	gen   uint64
	lru   *lru.Cache[string, entry[V]]
	group singleflight.Group
}

// NewKeyspace creates a keyspace holding at most capacity entries.
func NewKeyspace[V any](name string, capacity int, metrics *Metrics) *Keyspace[V] {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[string, entry[V]](capacity)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Keyspace[V]{name: name, metrics: metrics, lru: c}
}

// Get returns the cached value for key, loading it on a miss. Callers that
// miss while a load for the same key is in flight wait for that load. Each
// caller stops waiting when its own ctx is done; the load itself runs
// detached from any one caller's cancellation.
func (k *Keyspace[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, bool, error) {
	k.mu.Lock()
	if e, ok := k.lru.Get(key); ok {
		k.mu.Unlock()
		k.metrics.hits.WithLabelValues(k.name).Inc()
		return e.value, e.found, nil
	}
	gen := k.gen
	k.mu.Unlock()
	k.metrics.misses.WithLabelValues(k.name).Inc()

	loadCtx := context.WithoutCancel(ctx)
	flightKey := strconv.FormatUint(gen, 10) + "|" + key
	ch := k.group.DoChan(flightKey, func() (any, error) {
		k.metrics.loads.WithLabelValues(k.name).Inc()
		v, found, err := load(loadCtx)
		if err != nil {
			k.metrics.loadErrors.WithLabelValues(k.name).Inc()
			return nil, err
		}
		e := entry[V]{value: v, found: found}
		k.mu.Lock()
		if k.gen == gen {
			k.lru.Add(key, e)
		}
		k.mu.Unlock()
		return e, nil
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		e := res.Val.(entry[V])
		return e.value, e.found, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Peek returns a cached entry without loading.
func (k *Keyspace[V]) Peek(key string) (V, bool, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.lru.Peek(key)
	return e.value, e.found, ok
}

// Generation returns the current invalidation generation.
func (k *Keyspace[V]) Generation() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.gen
}

// AddAt stores a found value if no invalidation happened since gen.
func (k *Keyspace[V]) AddAt(gen uint64, key string, v V) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.gen == gen {
		k.lru.Add(key, entry[V]{value: v, found: true})
	}
}

// Remove drops the given keys.
func (k *Keyspace[V]) Remove(keys ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.gen++
	for _, key := range keys {
		if k.lru.Remove(key) {
			k.metrics.evictions.WithLabelValues(k.name).Inc()
		}
	}
}

// Purge drops every entry.
func (k *Keyspace[V]) Purge() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.gen++
	if n := k.lru.Len(); n > 0 {
		k.metrics.evictions.WithLabelValues(k.name).Add(float64(n))
	}
	k.lru.Purge()
}

// Len returns the number of cached entries.
func (k *Keyspace[V]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lru.Len()
}
