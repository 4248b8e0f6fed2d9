package common

import (
	"fmt"
	"sync"
	"time"
)

// DefaultSlotRetention bounds how many slots behind the newest one a
// MemorySlotTimeCache keeps. Roughly one hour of mainnet slots.
const DefaultSlotRetention = 9000

// SlotTimeCache maps slots to block times so events can be stamped with the
// time of the block that produced them.
type SlotTimeCache interface {
	// Get returns an error when the slot is unknown.
	Get(slot uint64) (time.Time, error)
	Set(slot uint64, timestamp time.Time)
	Size() int
	// PruneBeforeSlot removes entries below slot and reports how many went.
	PruneBeforeSlot(slot uint64) int
}

// MemorySlotTimeCache is an in-memory SlotTimeCache that forgets slots more
// than retention behind the newest slot it has seen.
type MemorySlotTimeCache struct {
	mu        sync.RWMutex
	slots     map[uint64]time.Time
	newest    uint64
	retention uint64
}

// NewMemorySlotTimeCache creates a cache with DefaultSlotRetention.
func NewMemorySlotTimeCache() *MemorySlotTimeCache {
	return NewMemorySlotTimeCacheWithRetention(DefaultSlotRetention)
}

// NewMemorySlotTimeCacheWithRetention creates a cache keeping retention
// slots. Zero disables automatic pruning.
func NewMemorySlotTimeCacheWithRetention(retention uint64) *MemorySlotTimeCache {
	return &MemorySlotTimeCache{
		slots:     make(map[uint64]time.Time),
		retention: retention,
	}
}

func (c *MemorySlotTimeCache) Get(slot uint64) (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ts, ok := c.slots[slot]
	if !ok {
		return time.Time{}, fmt.Errorf("slot %d not found in cache", slot)
	}
	return ts, nil
}

// Set stores the block time of slot. Slots already outside the retention
// window are ignored.
func (c *MemorySlotTimeCache) Set(slot uint64, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retention > 0 && c.newest > c.retention && slot < c.newest-c.retention {
		return
	}
	c.slots[slot] = timestamp

	if slot > c.newest {
		c.newest = slot
		if c.retention > 0 && c.newest > c.retention {
			c.pruneLocked(c.newest - c.retention)
		}
	}
}

func (c *MemorySlotTimeCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

func (c *MemorySlotTimeCache) PruneBeforeSlot(slot uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(slot)
}

func (c *MemorySlotTimeCache) pruneLocked(slot uint64) int {
	pruned := 0
	for s := range c.slots {
		if s < slot {
			delete(c.slots, s)
			pruned++
		}
	}
	return pruned
}
