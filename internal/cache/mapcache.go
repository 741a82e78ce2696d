package cache

import "sync"

// MapCache is a typed wrapper over sync.Map.
type MapCache[K comparable, V any] struct{ m sync.Map }

func NewMapCache[K comparable, V any]() *MapCache[K, V] {
	return &MapCache[K, V]{}
}
func (c *MapCache[K, V]) Set(k K, v V) {
	c.m.Store(k, v)
}
func (c *MapCache[K, V]) Get(k K) (V, bool) {
	v, ok := c.m.Load(k)
	if !ok {
		var z V
		return z, false
	}
	return v.(V), true
}

// GetOrSet returns the existing value for k, or stores and returns v.
func (c *MapCache[K, V]) GetOrSet(k K, v V) (V, bool) {
	actual, loaded := c.m.LoadOrStore(k, v)
	return actual.(V), loaded
}

// CompareAndDelete removes k only while it still maps to old.
// V must be comparable for this to be meaningful (pointers usually).
func (c *MapCache[K, V]) CompareAndDelete(k K, old V) bool { return c.m.CompareAndDelete(k, old) }

func (c *MapCache[K, V]) Range(fn func(k K, v V) bool) {
	c.m.Range(func(k, v any) bool { return fn(k.(K), v.(V)) })
}
func (c *MapCache[K, V]) Delete(k K) { c.m.Delete(k) }

// Clear removes every key present when it starts.
func (c *MapCache[K, V]) Clear() {
	c.Range(func(k K, _ V) bool {
		c.Delete(k)
		return true
	})
}
