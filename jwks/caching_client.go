/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package jwks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-appkit/lrucache"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheUpdateMinInterval is a minimal interval between cache updates for the same authority.
const DefaultCacheUpdateMinInterval = time.Minute * 1

// DefaultCacheTTL is the default time-to-live for cached JWKS entries.
// After this duration, cached entries are considered expired and will be refreshed.
// This prevents revoked keys from remaining in cache indefinitely.
const DefaultCacheTTL = time.Hour * 1

// CachingClientOpts contains options for CachingClient.
type CachingClientOpts struct {
	ClientOpts

	// CacheUpdateMinInterval is a minimal interval between cache updates for the same authority.
	CacheUpdateMinInterval time.Duration

	// CacheTTL is the time-to-live for cached JWKS entries.
	// After this duration, cached entries expire and will be refreshed on next access.
	CacheTTL time.Duration
}

// CachingClient is a Client for getting keys from remote JWKS with a caching mechanism.
// Entries are cached per authority, so one registry-wide client serves all tenants.
// The mutex only guards the cache map; JWKS fetches run outside of it,
// serialized per authority, so a slow fetch for one authority never blocks
// cached reads for the others.
type CachingClient struct {
	mu                     sync.RWMutex
	rawClient              *Client
	authorityCache         map[string]authorityCacheEntry
	refreshGroup           singleflight.Group
	cacheUpdateMinInterval time.Duration
	cacheTTL               time.Duration
}

const missingKeysCacheSize = 100

type authorityCacheEntry struct {
	updatedAt   time.Time
	expiresAt   time.Time
	keys        map[string]interface{}
	missingKeys *lrucache.LRUCache[string, time.Time]
}

func (ace *authorityCacheEntry) isExpired() bool {
	return time.Now().After(ace.expiresAt)
}

// NewCachingClient returns a new Client that can cache fetched data.
func NewCachingClient() *CachingClient {
	return NewCachingClientWithOpts(CachingClientOpts{})
}

// NewCachingClientWithOpts returns a new Client that can cache fetched data with options.
func NewCachingClientWithOpts(opts CachingClientOpts) *CachingClient {
	if opts.CacheUpdateMinInterval <= 0 {
		opts.CacheUpdateMinInterval = DefaultCacheUpdateMinInterval
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &CachingClient{
		rawClient:              NewClientWithOpts(opts.ClientOpts),
		authorityCache:         make(map[string]authorityCacheEntry),
		cacheUpdateMinInterval: opts.CacheUpdateMinInterval,
		cacheTTL:               opts.CacheTTL,
	}
}

// GetRSAPublicKey searches a JWK with the passed key ID in the authority's JWKS
// and returns a decoded RSA public key for it. The obtained JWKS is cached.
// If the passed authority URL or key ID is not found in the cache, the JWKS will be fetched again,
// but not more than once in a (configurable) period of time.
func (cc *CachingClient) GetRSAPublicKey(ctx context.Context, authorityURL, keyID string) (interface{}, error) {
	pubKey, found, needInvalidate := cc.getPubKeyFromCache(authorityURL, keyID)
	if found {
		return pubKey, nil
	}
	if needInvalidate {
		entry, err := cc.refreshAuthority(ctx, authorityURL, true)
		if err != nil {
			return nil, err
		}
		if pubKey, found = entry.keys[keyID]; found {
			return pubKey, nil
		}
		entry.missingKeys.Add(keyID, time.Now())
	}
	return nil, &JWKNotFoundError{AuthorityURL: authorityURL, KeyID: keyID}
}

// InvalidateCacheIfNeeded does cache invalidation for a specific authority URL.
// Invalidation is skipped when the cache for the authority was updated recently.
func (cc *CachingClient) InvalidateCacheIfNeeded(ctx context.Context, authorityURL string) error {
	_, err := cc.refreshAuthority(ctx, authorityURL, false)
	return err
}

func (cc *CachingClient) getPubKeyFromCache(
	authorityURL, keyID string,
) (pubKey interface{}, found bool, needInvalidate bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	authCache, authFound := cc.authorityCache[authorityURL]
	if !authFound {
		return nil, false, true
	}

	if authCache.isExpired() {
		return nil, false, true
	}

	if pubKey, found = authCache.keys[keyID]; found {
		return
	}
	missedAt, miss := authCache.missingKeys.Get(keyID)
	if !miss || time.Since(missedAt) > cc.cacheUpdateMinInterval {
		return nil, false, true
	}
	return nil, false, false
}

// refreshAuthority fetches the authority's JWKS and replaces its cache entry.
// Concurrent refreshes of the same authority are collapsed into one fetch;
// refreshes of different authorities proceed independently. When force is
// false, a refresh is skipped while the entry is younger than the minimal
// update interval.
func (cc *CachingClient) refreshAuthority(
	ctx context.Context, authorityURL string, force bool,
) (authorityCacheEntry, error) {
	cc.mu.RLock()
	prev, prevFound := cc.authorityCache[authorityURL]
	cc.mu.RUnlock()

	if !force && prevFound && time.Since(prev.updatedAt) < cc.cacheUpdateMinInterval {
		return prev, nil
	}

	v, err, _ := cc.refreshGroup.Do(authorityURL, func() (interface{}, error) {
		cc.mu.RLock()
		cur, curFound := cc.authorityCache[authorityURL]
		cc.mu.RUnlock()
		// Another goroutine may have refreshed the authority while we were
		// waiting for the flight; its result is fresh enough for us.
		if curFound && (!prevFound || cur.updatedAt.After(prev.updatedAt)) {
			return cur, nil
		}

		missingKeys := cur.missingKeys
		if missingKeys == nil {
			var newErr error
			if missingKeys, newErr = lrucache.New[string, time.Time](missingKeysCacheSize, nil); newErr != nil {
				return nil, fmt.Errorf("new lru cache for missing keys: %w", newErr)
			}
		}

		pubKeys, fetchErr := cc.rawClient.getRSAPubKeysForAuthority(ctx, authorityURL)
		if fetchErr != nil {
			return nil, fmt.Errorf("get rsa public keys for authority %q: %w", authorityURL, fetchErr)
		}
		now := time.Now()
		entry := authorityCacheEntry{
			updatedAt:   now,
			expiresAt:   now.Add(cc.cacheTTL),
			keys:        pubKeys,
			missingKeys: missingKeys,
		}
		cc.mu.Lock()
		cc.authorityCache[authorityURL] = entry
		cc.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return authorityCacheEntry{}, err
	}
	return v.(authorityCacheEntry), nil
}
