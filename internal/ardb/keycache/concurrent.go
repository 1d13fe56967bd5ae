package keycache

import (
	"sync"

	"github.com/twmb/murmur3"
)

// shardCount fixes the number of independently locked cache shards. The
// index sits on the write path of every command that creates or deletes a
// key, so contention matters more than per-shard size; 32 shards keep
// collisions rare at realistic client counts.
const shardCount = 32

// Concurrent is the sharded, goroutine-safe wrapper around Cache. Keys are
// routed to shards by murmur3; the hash only has to spread keys evenly, it
// has no compatibility constraints.
type Concurrent struct {
	shards [shardCount]struct {
		mu    sync.Mutex
		cache *Cache
	}
}

// NewConcurrent returns an empty sharded key index.
func NewConcurrent() *Concurrent {
	cc := &Concurrent{}
	for i := range cc.shards {
		cc.shards[i].cache = New()
	}
	return cc
}

func (cc *Concurrent) shardFor(key string) int {
	return int(murmur3.StringSum32(key) % shardCount)
}

// Put records key as live with no expiration.
func (cc *Concurrent) Put(key string) {
	s := &cc.shards[cc.shardFor(key)]
	s.mu.Lock()
	s.cache.Put(key)
	s.mu.Unlock()
}

// PutWithDeadline records key as live until the given Unix millisecond
// timestamp.
func (cc *Concurrent) PutWithDeadline(key string, deadline int64) {
	s := &cc.shards[cc.shardFor(key)]
	s.mu.Lock()
	s.cache.PutWithDeadline(key, deadline)
	s.mu.Unlock()
}

// Delete removes key from the index.
func (cc *Concurrent) Delete(key string) {
	s := &cc.shards[cc.shardFor(key)]
	s.mu.Lock()
	s.cache.Delete(key)
	s.mu.Unlock()
}

// Expire sets the deadline for an existing live key.
func (cc *Concurrent) Expire(key string, deadline, now int64) bool {
	s := &cc.shards[cc.shardFor(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Expire(key, deadline, now)
}

// Persist removes the deadline from a key.
func (cc *Concurrent) Persist(key string, now int64) bool {
	s := &cc.shards[cc.shardFor(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Persist(key, now)
}

// Deadline reports the expiration timestamp for key and whether it is live.
func (cc *Concurrent) Deadline(key string, now int64) (int64, bool) {
	s := &cc.shards[cc.shardFor(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Deadline(key, now)
}

// Keys returns the live keys matching pattern across all shards, sorted.
func (cc *Concurrent) Keys(pattern Pattern, now int64) []string {
	var out []string
	for i := range cc.shards {
		s := &cc.shards[i]
		s.mu.Lock()
		out = append(out, s.cache.Keys(pattern, now)...)
		s.mu.Unlock()
	}
	return sortKeys(out)
}

// Len returns the number of live keys across all shards.
func (cc *Concurrent) Len(now int64) int {
	total := 0
	for i := range cc.shards {
		s := &cc.shards[i]
		s.mu.Lock()
		total += s.cache.Len(now)
		s.mu.Unlock()
	}
	return total
}

// Sweep drains every shard's lapsed keys and returns them for eviction
// from the primary store.
func (cc *Concurrent) Sweep(now int64) []string {
	var expired []string
	for i := range cc.shards {
		s := &cc.shards[i]
		s.mu.Lock()
		expired = append(expired, s.cache.Sweep(now)...)
		s.mu.Unlock()
	}
	return expired
}
