package simbad

import (
	"container/list"
	"context"
	"sync"

	"github.com/lcogt/nres-sn/internal/domain"
	"github.com/lcogt/nres-sn/internal/observability"
)

// CachedCatalog wraps a Catalog with an in-memory LRU cache. A night usually
// repeats the same few targets, so most lookups after the first are hits.
type CachedCatalog struct {
	inner   domain.Catalog
	cache   *lruCache[string, float64]
	metrics *observability.Metrics
}

// NewCachedCatalog creates a cache decorator around a catalog.
func NewCachedCatalog(inner domain.Catalog, maxEntries int, metrics *observability.Metrics) *CachedCatalog {
	return &CachedCatalog{
		inner:   inner,
		cache:   newLRUCache[string, float64](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedCatalog) VMagnitude(ctx context.Context, name string) (float64, bool, error) {
	if mag, ok := c.cache.get(name); ok {
		c.metrics.CatalogCache.WithLabelValues("hit").Inc()
		return mag, true, nil
	}
	c.metrics.CatalogCache.WithLabelValues("miss").Inc()

	mag, found, err := c.inner.VMagnitude(ctx, name)
	if err != nil {
		return mag, found, err
	}
	// Only cache hits so a transient "not found" can be retried on a later night.
	if found {
		c.cache.put(name, mag)
	}
	return mag, found, nil
}

// lruCache is a thread-safe least-recently-used cache.
type lruCache[K comparable, V any] struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	items      map[K]*list.Element
}

type lruItem[K comparable, V any] struct {
	key   K
	value V
}

func newLRUCache[K comparable, V any](maxEntries int) *lruCache[K, V] {
	return &lruCache[K, V]{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[K]*list.Element),
	}
}

func (c *lruCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruItem[K, V]).value, true
}

func (c *lruCache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruItem[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&lruItem[K, V]{key: key, value: value})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruItem[K, V]).key)
	}
}
