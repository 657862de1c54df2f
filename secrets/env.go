/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package secrets

import (
	"context"
	"os"
	"strings"
)

// EnvProvider resolves secrets from environment variables.
// A vault secret name is mapped to an environment variable by uppercasing it
// and replacing dashes with underscores ("client-secret" -> "CLIENT_SECRET"),
// optionally prefixed.
type EnvProvider struct {
	// Prefix is prepended to the mapped variable name, e.g. "SENTRIAGE_".
	Prefix string
}

// GetSecret implements Provider interface.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	envName := p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	value, ok := os.LookupEnv(envName)
	if !ok || value == "" {
		return "", &NotFoundError{Name: name}
	}
	return value, nil
}
