/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTenantID(t *testing.T) {
	tests := []struct {
		name   string
		issuer string
		want   string
		wantOK bool
	}{
		{
			name:   "v1 issuer",
			issuer: "https://sts.windows.net/72f988bf-86f1-41af-91ab-2d7cd011db47/",
			want:   "72f988bf-86f1-41af-91ab-2d7cd011db47",
			wantOK: true,
		},
		{
			name:   "v2 issuer",
			issuer: "https://login.microsoftonline.com/72f988bf-86f1-41af-91ab-2d7cd011db47/v2.0",
			want:   "72f988bf-86f1-41af-91ab-2d7cd011db47",
			wantOK: true,
		},
		{name: "empty issuer", issuer: ""},
		{name: "not a url", issuer: "::::"},
		{name: "plain string", issuer: "my-issuer"},
		{name: "http scheme", issuer: "http://sts.windows.net/some-tenant/"},
		{name: "unknown host", issuer: "https://idp.example.com/some-tenant/"},
		{name: "v1 host without tenant", issuer: "https://sts.windows.net/"},
		{name: "v2 host without path", issuer: "https://login.microsoftonline.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveTenantID(tt.issuer)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
