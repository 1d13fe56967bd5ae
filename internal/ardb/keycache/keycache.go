// Package keycache maintains a secondary index of the live keyspace: which
// keys exist and when each one expires. The primary store stays the source
// of truth for values; this cache answers the two questions the store is
// badly shaped for — "which keys match this pattern" (KEYS) and "which keys
// have expired" (the active expiry sweep) — without walking every shard of
// the store under its locks.
//
// Expired entries are dropped lazily whenever the cache is read, and in
// bulk by Sweep, which the server's maintenance loop runs periodically to
// also delete the values from the primary store.
package keycache

import (
	"container/heap"
	"math"
	"sort"
)

// NoExpiry marks a key that never expires.
const NoExpiry int64 = math.MaxInt64

// expiryEntry is one heap element. Entries are not removed from the heap
// when a key's deadline changes; stale entries are detected on pop by
// comparing against the authoritative deadline in the map.
type expiryEntry struct {
	key      string
	expireAt int64
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expireAt < h[j].expireAt }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Cache is the single-shard key index. It is not safe for concurrent use;
// Concurrent provides the locked, sharded wrapper the server uses.
type Cache struct {
	expireAt map[string]int64
	byExpiry expiryHeap
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		expireAt: make(map[string]int64),
	}
}

// Put records key as live with no expiration. Re-putting a key clears any
// previous deadline, matching the store's SET semantics.
func (c *Cache) Put(key string) {
	c.expireAt[key] = NoExpiry
}

// PutWithDeadline records key as live, expiring at the given Unix
// millisecond timestamp.
func (c *Cache) PutWithDeadline(key string, deadline int64) {
	c.expireAt[key] = deadline
	heap.Push(&c.byExpiry, expiryEntry{key: key, expireAt: deadline})
}

// Delete removes key from the index. Any heap entry for it becomes stale
// and is skipped when popped.
func (c *Cache) Delete(key string) {
	delete(c.expireAt, key)
}

// Expire sets or replaces the deadline for an existing key. Returns false
// if the key is not present (or already lapsed at now).
func (c *Cache) Expire(key string, deadline, now int64) bool {
	c.drain(now)
	if _, ok := c.expireAt[key]; !ok {
		return false
	}
	c.PutWithDeadline(key, deadline)
	return true
}

// Persist removes the deadline from a key, making it permanent again.
// Returns false if the key is missing or had no deadline.
func (c *Cache) Persist(key string, now int64) bool {
	c.drain(now)
	deadline, ok := c.expireAt[key]
	if !ok || deadline == NoExpiry {
		return false
	}
	c.expireAt[key] = NoExpiry
	return true
}

// Deadline returns the expiration timestamp for key, with NoExpiry for
// permanent keys. The boolean reports whether the key is live at now.
func (c *Cache) Deadline(key string, now int64) (int64, bool) {
	c.drain(now)
	deadline, ok := c.expireAt[key]
	return deadline, ok
}

// Keys returns the live keys matching the pattern, in unspecified order.
func (c *Cache) Keys(pattern Pattern, now int64) []string {
	c.drain(now)
	var out []string
	for key := range c.expireAt {
		if pattern.Match(key) {
			out = append(out, key)
		}
	}
	return out
}

// Len returns the number of live keys.
func (c *Cache) Len(now int64) int {
	c.drain(now)
	return len(c.expireAt)
}

// Sweep removes every key whose deadline has passed and returns them, so
// the caller can evict the values from the primary store as well.
func (c *Cache) Sweep(now int64) []string {
	return c.drain(now)
}

// drain pops lapsed heap entries, deleting the keys they still accurately
// describe and skipping entries obsoleted by a later Expire or Delete.
func (c *Cache) drain(now int64) []string {
	var expired []string
	for len(c.byExpiry) > 0 && c.byExpiry[0].expireAt <= now {
		e := heap.Pop(&c.byExpiry).(expiryEntry)
		deadline, ok := c.expireAt[e.key]
		if !ok || deadline != e.expireAt {
			continue // stale heap entry
		}
		delete(c.expireAt, e.key)
		expired = append(expired, e.key)
	}
	return expired
}

// sortKeys orders results for deterministic replies; KEYS output order is
// not contractual but stable output is friendlier to scripts and tests.
func sortKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}
