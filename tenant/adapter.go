/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package tenant

import (
	"context"
	"strings"

	"github.com/acronis/go-appkit/log"

	"github.com/secopshub/sentriage/jwt"
)

// DefaultBaseAuthorityURL is the base of per-tenant authority URLs.
const DefaultBaseAuthorityURL = "https://login.microsoftonline.com"

// AuthorityURL builds the v2 authority URL for a tenant.
func AuthorityURL(baseAuthorityURL, tenantID string) string {
	return strings.TrimSuffix(baseAuthorityURL, "/") + "/" + tenantID + "/v2.0"
}

// Adapter bundles everything needed to validate tokens of a single tenant.
// Its validator is pinned to the tenant's authority: trust material always
// comes from the authority derived from configuration, never from the token.
type Adapter struct {
	tenantID  string
	authority string
	validator *jwt.Validator
}

// AdapterOpts contains options for NewAdapter.
type AdapterOpts struct {
	// BaseAuthorityURL is the base of the authority URL. DefaultBaseAuthorityURL is used when empty.
	BaseAuthorityURL string

	// RequireAudience specifies whether the audience claim must be present in tokens.
	RequireAudience bool

	// ExpectedAudience is a list of expected audience values (glob patterns allowed).
	ExpectedAudience []string

	// LoggerProvider is a function that provides a logger for the adapter's validator.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// NewAdapter creates an adapter for the tenant with the given keys provider.
// Construction is purely local: no network I/O happens until the first token validation.
func NewAdapter(tenantID string, keysProvider jwt.KeysProvider, opts AdapterOpts) *Adapter {
	baseAuthorityURL := opts.BaseAuthorityURL
	if baseAuthorityURL == "" {
		baseAuthorityURL = DefaultBaseAuthorityURL
	}
	authority := AuthorityURL(baseAuthorityURL, tenantID)
	validator := jwt.NewValidatorWithOpts(authority, keysProvider, jwt.ValidatorOpts{
		RequireAudience:  opts.RequireAudience,
		ExpectedAudience: opts.ExpectedAudience,
		LoggerProvider:   opts.LoggerProvider,
	})
	return &Adapter{tenantID: tenantID, authority: authority, validator: validator}
}

// TenantID returns the tenant id this adapter serves.
func (a *Adapter) TenantID() string {
	return a.tenantID
}

// Authority returns the tenant's authority URL.
func (a *Adapter) Authority() string {
	return a.authority
}

// ValidateToken verifies the token signature and claims against the tenant's authority.
func (a *Adapter) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	return a.validator.Validate(ctx, token)
}
