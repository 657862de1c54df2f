/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package authutil provides helpers shared by the authentication subsystem:
// a default HTTP client for talking to identity providers, logger plumbing,
// and OpenID Connect discovery-document fetching.
package authutil
