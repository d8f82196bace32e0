package repository

import (
	"sync"
	"time"

	"github.com/hilthontt/bookingsync/internal/domain"
)

// SnapshotCache keeps the last known snapshot of recently viewed bookings so
// switching back to one can render before the server answers.
type SnapshotCache struct {
	snapshots  map[string]domain.Snapshot
	lastAccess map[string]time.Time
	capacity   uint
	idleExpiry time.Duration
	now        func() time.Time
	mu         *sync.Mutex
}

func NewSnapshotCache(capacity uint, idleExpiry time.Duration) *SnapshotCache {
	if capacity == 0 {
		capacity = 32
	}
	if idleExpiry == 0 {
		idleExpiry = 30 * time.Minute
	}

	return &SnapshotCache{
		snapshots:  make(map[string]domain.Snapshot),
		lastAccess: make(map[string]time.Time),
		capacity:   capacity,
		idleExpiry: idleExpiry,
		now:        time.Now,
		mu:         &sync.Mutex{},
	}
}

func (c *SnapshotCache) Put(bookingID string, s domain.Snapshot) {
	if bookingID == "" || len(s) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictIdle()
	c.snapshots[bookingID] = s.Clone()
	c.lastAccess[bookingID] = c.now()
	c.enforceCapacity()
}

func (c *SnapshotCache) Get(bookingID string) (domain.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictIdle()
	s, ok := c.snapshots[bookingID]
	if !ok {
		return nil, false
	}
	c.lastAccess[bookingID] = c.now()
	return s.Clone(), true
}

func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}

func (c *SnapshotCache) evictIdle() {
	cutoff := c.now().Add(-c.idleExpiry)
	for id, last := range c.lastAccess {
		if last.Before(cutoff) {
			delete(c.snapshots, id)
			delete(c.lastAccess, id)
		}
	}
}

// enforceCapacity drops the least recently accessed entries.
func (c *SnapshotCache) enforceCapacity() {
	for uint(len(c.snapshots)) > c.capacity {
		var oldestID string
		var oldest time.Time
		for id, t := range c.lastAccess {
			if oldestID == "" || t.Before(oldest) {
				oldestID, oldest = id, t
			}
		}
		delete(c.snapshots, oldestID)
		delete(c.lastAccess, oldestID)
	}
}
