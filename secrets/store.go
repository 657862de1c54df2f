/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Store caches secrets fetched from a primary Provider.
// Cached values never expire: secrets like client credentials change rarely,
// and rotation is handled by calling Invalidate explicitly.
// When the primary provider fails or does not have the secret,
// the fallback provider (typically EnvProvider) is consulted.
type Store struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string

	group singleflight.Group
}

// NewStore creates a Store on top of the primary provider.
// Fallback may be nil.
func NewStore(primary, fallback Provider) *Store {
	return &Store{
		primary:  primary,
		fallback: fallback,
		cache:    make(map[string]string),
	}
}

// GetSecret returns the secret value, fetching and caching it on first access.
// Concurrent requests for the same name result in a single provider call.
func (s *Store) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	value, found := s.cache[name]
	s.mu.RUnlock()
	if found {
		return value, nil
	}

	v, err, _ := s.group.Do(name, func() (interface{}, error) {
		fetched, fetchErr := s.fetch(ctx, name)
		if fetchErr != nil {
			return "", fetchErr
		}
		s.mu.Lock()
		s.cache[name] = fetched
		s.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate removes the named secret from the cache.
// The next GetSecret call will fetch it from the provider again.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

func (s *Store) fetch(ctx context.Context, name string) (string, error) {
	if s.primary == nil {
		if s.fallback == nil {
			return "", &NotFoundError{Name: name}
		}
		return s.fallback.GetSecret(ctx, name)
	}

	value, err := s.primary.GetSecret(ctx, name)
	if err == nil {
		return value, nil
	}
	if s.fallback == nil {
		return "", err
	}

	fallbackValue, fallbackErr := s.fallback.GetSecret(ctx, name)
	if fallbackErr == nil {
		return fallbackValue, nil
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return "", err
	}
	return "", fmt.Errorf("get secret %q: %w", name, err)
}
