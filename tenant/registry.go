/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/acronis/go-appkit/log"

	"github.com/secopshub/sentriage/internal/authutil"
	"github.com/secopshub/sentriage/jwt"
)

// ErrHomeTenantIDRequired is returned by NewRegistry when the home tenant id is not configured.
var ErrHomeTenantIDRequired = errors.New("home tenant id is required")

// UnknownTenantError means an operation requires a tenant the registry does not serve.
type UnknownTenantError struct {
	TenantID string
}

func (e *UnknownTenantError) Error() string {
	return fmt.Sprintf("tenant %q is not served", e.TenantID)
}

// RegistryOpts contains options for Registry.
type RegistryOpts struct {
	// BaseAuthorityURL is the base of per-tenant authority URLs.
	// DefaultBaseAuthorityURL is used when empty.
	BaseAuthorityURL string

	// MultiTenantEnabled allows serving tokens from tenants other than the home one.
	MultiTenantEnabled bool

	// AutoTenantDiscovery allows creating adapters for previously unseen tenants on demand.
	// It only has an effect when MultiTenantEnabled is true.
	AutoTenantDiscovery bool

	// AllowedTenantIDs restricts auto-discovery to the listed tenants.
	// An empty list means any tenant may be discovered.
	AllowedTenantIDs []string

	// RequireAudience specifies whether the audience claim must be present in tokens.
	RequireAudience bool

	// ExpectedAudience is a list of expected audience values (glob patterns allowed).
	ExpectedAudience []string

	// LoggerProvider is a function that provides a logger for the registry and its adapters.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// Registry owns the set of per-tenant adapters.
// The home tenant adapter is created eagerly; adapters of foreign tenants are
// created on first use when auto-discovery permits. All tenants share one
// keys provider, so JWKS caching spans the whole registry.
type Registry struct {
	homeTenantID string
	keysProvider jwt.KeysProvider
	opts         RegistryOpts

	allowedTenantIDs map[string]struct{}

	mu       sync.RWMutex
	adapters map[string]*Adapter
}

// NewRegistry creates a Registry with an eagerly constructed home tenant adapter.
func NewRegistry(homeTenantID string, keysProvider jwt.KeysProvider, opts RegistryOpts) (*Registry, error) {
	if homeTenantID == "" {
		return nil, ErrHomeTenantIDRequired
	}

	var allowed map[string]struct{}
	if len(opts.AllowedTenantIDs) != 0 {
		allowed = make(map[string]struct{}, len(opts.AllowedTenantIDs))
		for _, id := range opts.AllowedTenantIDs {
			allowed[id] = struct{}{}
		}
	}

	r := &Registry{
		homeTenantID:     homeTenantID,
		keysProvider:     keysProvider,
		opts:             opts,
		allowedTenantIDs: allowed,
		adapters:         make(map[string]*Adapter),
	}
	r.adapters[homeTenantID] = r.newAdapter(homeTenantID)
	return r, nil
}

// HomeTenantID returns the id of the home tenant.
func (r *Registry) HomeTenantID() string {
	return r.homeTenantID
}

// HomeAdapter returns the adapter of the home tenant.
func (r *Registry) HomeAdapter() *Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[r.homeTenantID]
}

// Get returns the adapter for the tenant if the registry already serves it.
func (r *Registry) Get(tenantID string) (*Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, found := r.adapters[tenantID]
	return adapter, found
}

// TenantIDs returns the ids of all tenants the registry currently serves.
func (r *Registry) TenantIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// ResolveIssuer returns the adapter that should validate a token with the given issuer claim.
// An issuer whose tenant cannot be determined routes to the home adapter:
// the routing decision is based on unverified data, and the home validator
// will reject the token anyway unless it was genuinely issued by the home tenant.
func (r *Registry) ResolveIssuer(ctx context.Context, issuer string) (*Adapter, error) {
	tenantID, ok := ResolveTenantID(issuer)
	if !ok {
		return r.HomeAdapter(), nil
	}
	return r.ResolveTenant(ctx, tenantID)
}

// ResolveTenant returns the adapter for the tenant, creating it when auto-discovery permits.
// A tenant the registry may not serve resolves to the home adapter as well:
// the token is then validated against home-tenant trust material and rejected
// unless it genuinely verifies there.
func (r *Registry) ResolveTenant(ctx context.Context, tenantID string) (*Adapter, error) {
	r.mu.RLock()
	adapter, found := r.adapters[tenantID]
	r.mu.RUnlock()
	if found {
		return adapter, nil
	}

	if !r.opts.MultiTenantEnabled || !r.opts.AutoTenantDiscovery {
		return r.HomeAdapter(), nil
	}
	if r.allowedTenantIDs != nil {
		if _, allowed := r.allowedTenantIDs[tenantID]; !allowed {
			return r.HomeAdapter(), nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have created the adapter while we were waiting for the lock.
	if adapter, found = r.adapters[tenantID]; found {
		return adapter, nil
	}
	adapter = r.newAdapter(tenantID)
	r.adapters[tenantID] = adapter

	authutil.GetLoggerFromProvider(ctx, r.opts.LoggerProvider).Info(
		"new tenant adapter created", log.String("tenant_id", tenantID))
	return adapter, nil
}

func (r *Registry) newAdapter(tenantID string) *Adapter {
	return NewAdapter(tenantID, r.keysProvider, AdapterOpts{
		BaseAuthorityURL: r.opts.BaseAuthorityURL,
		RequireAudience:  r.opts.RequireAudience,
		ExpectedAudience: r.opts.ExpectedAudience,
		LoggerProvider:   r.opts.LoggerProvider,
	})
}
