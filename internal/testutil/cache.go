package testutil

import (
	"sync"

	"github.com/opencontainers/go-digest"
)

// MockCache implements a basic concurrency-safe cache for tests.
type MockCache struct {
	mu   sync.RWMutex
	data map[digest.Digest][]byte
	puts int
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get returns a copy of the cached content for key.
func (c *MockCache) Get(key digest.Digest) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Set stores content under key as-is, bypassing the Put counter.
func (c *MockCache) Set(key digest.Digest, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = content
}

// Put stores a copy of content under key.
func (c *MockCache) Put(key digest.Digest, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[key] = append([]byte(nil), content...)
	return nil
}

// Delete removes cached content for key.
func (c *MockCache) Delete(key digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len returns the number of cached items.
func (c *MockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Puts returns how many times Put was called.
func (c *MockCache) Puts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.puts
}
