/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package sentriage

import (
	"github.com/secopshub/sentriage/jwt"
)

// UserIdentity is the authenticated caller of a request.
// It is safe to serialize: the raw bearer token is deliberately kept out of
// the JSON representation and is only reachable through RawToken.
type UserIdentity struct {
	// ID is the immutable account identifier ("oid" claim).
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name,omitempty"`

	// Email is the sign-in address.
	Email string `json:"email,omitempty"`

	// Roles are the app roles assigned to the user.
	Roles []string `json:"roles,omitempty"`

	// Scopes are the delegated scopes granted to the client for this user.
	Scopes []string `json:"scopes,omitempty"`

	// TenantID is the id of the tenant that issued the token.
	TenantID string `json:"tenant_id"`

	// Issuer is the verified issuer claim of the token.
	Issuer string `json:"issuer,omitempty"`

	rawToken string
}

// RawToken returns the validated bearer token the identity was built from.
// It is used as the user assertion in on-behalf-of token exchange.
func (u *UserIdentity) RawToken() string {
	return u.rawToken
}

func newUserIdentity(claims *jwt.Claims, rawToken string) *UserIdentity {
	return &UserIdentity{
		ID:       claims.ObjectID,
		Name:     claims.Name,
		Email:    claims.Email,
		Roles:    claims.Roles,
		Scopes:   claims.ScopeSet(),
		TenantID: claims.TenantID,
		Issuer:   claims.Issuer,
		rawToken: rawToken,
	}
}
