// Package gattcache keeps the most recently discovered service trees per
// device address so callers can inspect a profile after the link is gone.
package gattcache

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
)

// DefaultSize is used when New is given a non-positive size
const DefaultSize = 16

// Cache is a bounded, least-recently-used store of service trees.
// Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	trees  *lru.Cache
	logger *logrus.Logger
}

var _ gatt.ServiceCache = (*Cache)(nil)

// New creates a cache holding at most size trees
func New(size int, logger *logrus.Logger) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = logrus.New()
	}

	c := &Cache{
		trees:  lru.New(size),
		logger: logger,
	}
	c.trees.OnEvicted = func(key lru.Key, _ interface{}) {
		c.logger.WithField("address", key).Debug("Service tree evicted from cache")
	}
	return c
}

// Store remembers services for address, replacing any previous tree
func (c *Cache) Store(address string, services []*gatt.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.trees.Add(address, services)
	c.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(services),
	}).Debug("Service tree cached")
}

// Load returns the tree cached for address
func (c *Cache) Load(address string) ([]*gatt.Service, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.trees.Get(address)
	if !ok {
		return nil, false
	}
	services, ok := v.([]*gatt.Service)
	return services, ok
}

// Invalidate forgets the tree of address
func (c *Cache) Invalidate(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees.Remove(address)
}

// Len returns the number of cached trees
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trees.Len()
}
