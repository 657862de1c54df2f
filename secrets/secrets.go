/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package secrets provides access to application secrets (client credentials,
// workspace keys) backed by a remote vault with an environment fallback.
package secrets

import (
	"context"
	"fmt"
)

// Provider fetches a secret value by its vault name.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ProviderFunc is a function that implements Provider interface.
type ProviderFunc func(ctx context.Context, name string) (string, error)

// GetSecret implements Provider interface.
func (f ProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// NotFoundError is returned when a secret is not present in the provider.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret %q not found", e.Name)
}
