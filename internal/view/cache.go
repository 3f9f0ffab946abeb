package view

import (
	"sync"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

// Cache mirrors the latest snapshot for one subscriber. Every emission
// replaces the whole list; nothing is ever merged or patched locally.
type Cache struct {
	mu        sync.RWMutex
	resources []models.Resource
	loading   bool
	err       error
	query     Query
}

func NewCache(q Query) *Cache {
	return &Cache{
		loading: true,
		query:   q,
	}
}

func (c *Cache) Apply(s models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loading = false
	if s.Err != nil {
		c.err = s.Err
		c.resources = nil
		return
	}
	c.err = nil
	c.resources = s.Resources
}

func (c *Cache) SetQuery(q Query) {
	c.mu.Lock()
	c.query = q
	c.mu.Unlock()
}

func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Raw returns the unfiltered list as last received.
func (c *Cache) Raw() []models.Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

func (c *Cache) View() []models.Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query.Apply(c.resources)
}
