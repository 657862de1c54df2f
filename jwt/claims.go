/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package jwt

import (
	"strings"

	jwtgo "github.com/golang-jwt/jwt/v5"
)

// Claims is the set of token claims the triage service consumes.
// The field names follow the wire format of Microsoft Entra ID access tokens
// ("scp" is a space-separated scope list, "tid" is the issuing tenant).
type Claims struct {
	jwtgo.RegisteredClaims

	// ObjectID is the immutable account identifier ("oid").
	ObjectID string `json:"oid,omitempty"`

	// Name is the human-readable display name.
	Name string `json:"name,omitempty"`

	// Email carries the preferred_username claim, which is the sign-in address.
	Email string `json:"preferred_username,omitempty"`

	// Roles are the app roles assigned to the subject.
	Roles []string `json:"roles,omitempty"`

	// Scope is the raw space-separated scope claim.
	Scope string `json:"scp,omitempty"`

	// TenantID is the id of the tenant that issued the token.
	TenantID string `json:"tid,omitempty"`
}

// ScopeSet returns the scope claim split into individual scopes.
func (c *Claims) ScopeSet() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// DecodeUnverified extracts claims from a token without verifying its signature.
// The result is untrusted routing data: it may be used to pick a validator,
// never to make an authorization decision.
func DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwtgo.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
