package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/mnemosyne/bridge"
	"github.com/richinex/mnemosyne/manifest"
)

// Cache holds one Store per dataset id for the lifetime of the
// process. Get-or-create is race-safe: the first caller to request an
// id wins construction and concurrent requesters converge on the same
// handle.
type Cache struct {
	mu     sync.Mutex
	stores map[string]*Store
	bridge bridge.Bridge
	logger *zap.Logger
}

// NewCache creates an empty store cache backed by the given bridge.
func NewCache(b bridge.Bridge, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		stores: make(map[string]*Store),
		bridge: b,
		logger: logger,
	}
}

// GetStore returns the store handle for the dataset, constructing it
// on first request. The dataset snapshot of the first request wins;
// a reloaded registry is expected to be paired with a Clear.
func (c *Cache) GetStore(dataset manifest.Dataset) *Store {
	c.mu.Lock()
	defer c.mu.Unlock()

	if store, ok := c.stores[dataset.ID]; ok {
		return store
	}

	store := NewStore(dataset, c.bridge, c.logger.With(zap.String("dataset", dataset.ID)))
	c.stores[dataset.ID] = store
	return store
}

// Len returns the number of cached store handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stores)
}

// Clear drops all cached handles. Exposed for test isolation and for
// callers that rebuild the registry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores = make(map[string]*Store)
}
