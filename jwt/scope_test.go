/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package jwt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasAnyScope(t *testing.T) {
	tests := []struct {
		name     string
		token    []string
		required []string
		want     bool
	}{
		{name: "empty required set always passes", token: nil, required: nil, want: true},
		{name: "empty required set passes with scopes present", token: []string{"access_as_user"}, required: nil, want: true},
		{name: "single match", token: []string{"access_as_user"}, required: []string{"access_as_user"}, want: true},
		{
			name:     "one of several matches",
			token:    []string{"offline_access", "triage.read"},
			required: []string{"triage.read", "triage.write"},
			want:     true,
		},
		{name: "no match", token: []string{"offline_access"}, required: []string{"triage.read"}, want: false},
		{name: "empty token scopes", token: nil, required: []string{"triage.read"}, want: false},
		{name: "case sensitive", token: []string{"Triage.Read"}, required: []string{"triage.read"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, HasAnyScope(tt.token, tt.required))
		})
	}
}

func TestClaimsScopeSet(t *testing.T) {
	require.Nil(t, (&Claims{}).ScopeSet())
	require.Equal(t, []string{"a", "b"}, (&Claims{Scope: "a b"}).ScopeSet())
	require.Equal(t, []string{"a"}, (&Claims{Scope: "  a  "}).ScopeSet())
}
