/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package tenant maps token issuers to per-tenant validation adapters.
package tenant

import (
	"net/url"
	"strings"
)

// Issuer host names used by Microsoft Entra ID v1 and v2 endpoints.
const (
	issuerHostV1 = "sts.windows.net"
	issuerHostV2 = "login.microsoftonline.com"
)

// ResolveTenantID extracts the tenant id from an issuer claim value.
// It understands the two issuer shapes produced by Entra ID:
//
//	https://sts.windows.net/{tenant-id}/
//	https://login.microsoftonline.com/{tenant-id}/v2.0
//
// In both shapes the tenant id is the second-to-last path segment.
// Any other issuer value yields ok == false. The function never fails:
// the issuer is unverified routing data and an unrecognized value simply
// means the tenant is unknown.
func ResolveTenantID(issuer string) (tenantID string, ok bool) {
	u, err := url.Parse(issuer)
	if err != nil || u.Scheme != "https" {
		return "", false
	}
	if u.Host != issuerHostV1 && u.Host != issuerHostV2 {
		return "", false
	}

	segments := strings.Split(u.Path, "/")
	// A trailing slash or version suffix leaves the tenant id second-to-last.
	if len(segments) < 3 {
		return "", false
	}
	tenantID = segments[len(segments)-2]
	if tenantID == "" {
		return "", false
	}
	return tenantID, true
}
