package memory

import (
	"context"
	"sync"
)

// ContentCache is an in-process question-set cache, used when no Redis is
// configured and in tests.
type ContentCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewContentCache() *ContentCache {
	return &ContentCache{entries: make(map[string][]byte)}
}

func (c *ContentCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

func (c *ContentCache) Set(_ context.Context, key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	c.entries[key] = stored
	return nil
}
