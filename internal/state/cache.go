package state

import (
	stdsync "sync"
	"time"

	"github.com/phoorichet/confluence-sync-sub002/internal/sync"
)

// Cache holds lightweight shared state for the MCP session.
type Cache struct {
	mu         stdsync.RWMutex
	space      string
	changes    []sync.ItemState
	detectedAt time.Time
}

// NewCache creates a Cache.
func NewCache() *Cache {
	return &Cache{}
}

// SetChanges stores the result of a detection pass over space.
func (c *Cache) SetChanges(space string, states []sync.ItemState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.space = space
	c.changes = append([]sync.ItemState(nil), states...)
	c.detectedAt = time.Now()
}

// Changes returns the detection pass cached for space, provided it is
// younger than maxAge. The second return reports whether a fresh entry
// was found.
func (c *Cache) Changes(space string, maxAge time.Duration) ([]sync.ItemState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.detectedAt.IsZero() || c.space != space {
		return nil, false
	}
	if time.Since(c.detectedAt) > maxAge {
		return nil, false
	}
	return append([]sync.ItemState(nil), c.changes...), true
}

// DetectedAt reports when the cached detection pass ran.
func (c *Cache) DetectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detectedAt
}
