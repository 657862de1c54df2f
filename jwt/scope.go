/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package jwt

// HasAnyScope reports whether at least one of the required scopes is present
// in the token's scope set. An empty required set means no scope enforcement
// is configured and always passes.
func HasAnyScope(tokenScopes, requiredScopes []string) bool {
	if len(requiredScopes) == 0 {
		return true
	}
	for i := range requiredScopes {
		for j := range tokenScopes {
			if requiredScopes[i] == tokenScopes[j] {
				return true
			}
		}
	}
	return false
}
