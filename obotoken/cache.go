/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package obotoken

import (
	"sync"
	"time"
)

// DefaultExpiryBuffer is subtracted from a token's expiry when deciding
// whether a cached token is still usable. A token within the buffer of its
// expiry is treated as expired so that downstream calls never race the
// real expiration.
const DefaultExpiryBuffer = 5 * time.Minute

// CacheKey identifies a delegated token: one token per (tenant, resource) pair.
type CacheKey struct {
	TenantID string
	Resource string
}

// CachedToken is a delegated access token together with its expiry.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// IsFresh reports whether the token is usable at the given moment,
// keeping the expiry buffer. The boundary instant is NOT fresh:
// a token exactly buffer away from expiry gets re-minted.
func (t CachedToken) IsFresh(now time.Time, buffer time.Duration) bool {
	return now.Before(t.ExpiresAt.Add(-buffer))
}

// TokenCache stores delegated tokens keyed by (tenant, resource).
type TokenCache interface {
	// Get returns a value from the cache by key.
	Get(key CacheKey) (CachedToken, bool)

	// Put sets a new value to the cache by key.
	Put(key CacheKey, token CachedToken)

	// Delete removes a value from the cache by key.
	Delete(key CacheKey)

	// ClearAll removes all values from the cache.
	ClearAll()
}

// InMemoryTokenCache is a TokenCache backed by a map.
type InMemoryTokenCache struct {
	mu    sync.RWMutex
	items map[CacheKey]CachedToken
}

// NewInMemoryTokenCache creates a new InMemoryTokenCache.
func NewInMemoryTokenCache() *InMemoryTokenCache {
	return &InMemoryTokenCache{items: make(map[CacheKey]CachedToken)}
}

func (c *InMemoryTokenCache) Get(key CacheKey) (CachedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, found := c.items[key]
	return token, found
}

func (c *InMemoryTokenCache) Put(key CacheKey, token CachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = token
}

func (c *InMemoryTokenCache) Delete(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *InMemoryTokenCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[CacheKey]CachedToken)
}
