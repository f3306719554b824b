// Package cache holds the last accepted batch per drone. It backs the pull
// fallback used by viewers that cannot keep a push connection.
package cache

import (
	"hash/fnv"
	"sync"

	"droneops-relay/internal/scan"
)

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	entries map[string]*scan.Batch
}

// LastKnown maps drone id to its most recent batch. Entries are
// overwritten on every Put and never expire.
type LastKnown struct {
	shards [shardCount]shard
}

// New returns an empty cache.
func New() *LastKnown {
	c := &LastKnown{}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*scan.Batch)
	}
	return c
}

func (c *LastKnown) shardFor(droneID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(droneID))
	return &c.shards[h.Sum32()%shardCount]
}

// Put replaces the entry for droneID with b.
func (c *LastKnown) Put(droneID string, b *scan.Batch) {
	s := c.shardFor(droneID)
	s.mu.Lock()
	s.entries[droneID] = b
	s.mu.Unlock()
}

// Get returns the cached batch for droneID. ok is false when nothing has
// been accepted for that drone yet.
func (c *LastKnown) Get(droneID string) (b *scan.Batch, ok bool) {
	s := c.shardFor(droneID)
	s.mu.RLock()
	b, ok = s.entries[droneID]
	s.mu.RUnlock()
	return b, ok
}

// Len reports the number of drones with a cached batch.
func (c *LastKnown) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
