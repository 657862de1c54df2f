/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package jwt provides parsing and validation of bearer tokens issued by
// Microsoft Entra ID authorities.
package jwt

import (
	"context"
	"errors"
	"fmt"

	"github.com/acronis/go-appkit/log"
	jwtgo "github.com/golang-jwt/jwt/v5"

	"github.com/secopshub/sentriage/internal/authutil"
)

// KeysProvider is an interface for providing keys for verifying JWT.
type KeysProvider interface {
	GetRSAPublicKey(ctx context.Context, authority, keyID string) (interface{}, error)
}

// CachingKeysProvider is an interface for providing keys for verifying JWT.
// Unlike KeysProvider, it supports caching of obtained keys.
type CachingKeysProvider interface {
	KeysProvider
	InvalidateCacheIfNeeded(ctx context.Context, authority string) error
}

// ValidatorOpts additional options for validator.
type ValidatorOpts struct {
	// SkipClaimsValidation allows skipping claims validation (e.g., checking expiration time).
	// It doesn't affect signature verification.
	SkipClaimsValidation bool

	// RequireAudience specifies whether audience should be required. If true, "aud" claim must be present in the token.
	RequireAudience bool

	// ExpectedAudience is a list of expected audience values.
	// It's allowed to use glob patterns (api://my-app-*) for audience matching.
	// If it's not empty, "aud" JWT claim must match at least one of the patterns.
	ExpectedAudience []string

	// LoggerProvider is a function that provides a logger for the Validator.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// Validator parses and verifies tokens against the signing keys of a single
// authority. The authority is fixed at construction time: key lookup never
// follows the token's own issuer claim, so a forged issuer cannot redirect
// verification to an attacker-controlled JWKS.
type Validator struct {
	authority            string
	parser               *jwtgo.Parser
	audienceValidator    *AudienceValidator
	skipClaimsValidation bool
	keysProvider         KeysProvider

	loggerProvider func(ctx context.Context) log.FieldLogger
}

// NewValidator creates new JWT validator for the given authority with specified keys provider.
func NewValidator(authority string, keysProvider KeysProvider) *Validator {
	return NewValidatorWithOpts(authority, keysProvider, ValidatorOpts{})
}

// NewValidatorWithOpts creates new JWT validator for the given authority
// with specified keys provider and additional options.
func NewValidatorWithOpts(authority string, keysProvider KeysProvider, opts ValidatorOpts) *Validator {
	parserOpts := []jwtgo.ParserOption{jwtgo.WithExpirationRequired()}
	if opts.SkipClaimsValidation {
		parserOpts = append(parserOpts, jwtgo.WithoutClaimsValidation())
	}
	return &Validator{
		authority:            authority,
		parser:               jwtgo.NewParser(parserOpts...),
		audienceValidator:    NewAudienceValidator(opts.RequireAudience, opts.ExpectedAudience),
		skipClaimsValidation: opts.SkipClaimsValidation,
		keysProvider:         keysProvider,
		loggerProvider:       opts.LoggerProvider,
	}
}

// Authority returns the authority URL this validator verifies tokens against.
func (v *Validator) Authority() string {
	return v.authority
}

// Validate parses, validates and verifies the passed token (its string representation).
// Parsed claims are returned.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	keyFunc := v.getKeyFunc(ctx)
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(token, claims, keyFunc); err != nil {
		if !errors.Is(err, jwtgo.ErrTokenSignatureInvalid) {
			return nil, err
		}

		// Signing keys may have been rotated since the last JWKS fetch.
		// If the keys provider supports caching, invalidate it and try parsing once more.
		cachingKeysProvider, ok := v.keysProvider.(CachingKeysProvider)
		if !ok {
			return nil, err
		}
		if invalidateErr := cachingKeysProvider.InvalidateCacheIfNeeded(ctx, v.authority); invalidateErr != nil {
			authutil.GetLoggerFromProvider(ctx, v.loggerProvider).Error(
				fmt.Sprintf("keys provider invalidating cache error for authority %q", v.authority),
				log.Error(invalidateErr))
			return nil, err
		}
		if _, err = v.parser.ParseWithClaims(token, claims, keyFunc); err != nil {
			return nil, err
		}
	}

	if !v.skipClaimsValidation {
		if err := v.audienceValidator.Validate(claims); err != nil {
			return nil, fmt.Errorf("%w: %w", jwtgo.ErrTokenInvalidClaims, err)
		}
	}

	return claims, nil
}

func (v *Validator) getKeyFunc(ctx context.Context) func(token *jwtgo.Token) (interface{}, error) {
	return func(token *jwtgo.Token) (i interface{}, err error) {
		switch signAlg := token.Method.Alg(); signAlg {
		case "none": //nolint:goconst
			return nil, jwtgo.NoneSignatureTypeDisallowedError

		case "RS256", "RS384", "RS512":
			// Empty kid is LEGAL, not all IDP impl support kid.
			kidStr := ""
			if kid, found := token.Header["kid"]; found {
				kidStr = kid.(string)
			}
			return v.keysProvider.GetRSAPublicKey(ctx, v.authority, kidStr)

		default:
			return nil, &SignAlgUnknownError{signAlg}
		}
	}
}
