/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package sentriage authenticates multi-tenant bearer tokens and brokers
// delegated downstream credentials on behalf of the authenticated user.
package sentriage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	jwtgo "github.com/golang-jwt/jwt/v5"

	"github.com/secopshub/sentriage/internal/authutil"
	"github.com/secopshub/sentriage/internal/metrics"
	"github.com/secopshub/sentriage/jwks"
	"github.com/secopshub/sentriage/jwt"
	"github.com/secopshub/sentriage/obotoken"
	"github.com/secopshub/sentriage/secrets"
	"github.com/secopshub/sentriage/tenant"
)

// Token validation results reported to metrics.
const (
	validationResultOK       = "ok"
	validationResultRejected = "rejected"
)

// Authenticator validates inbound bearer tokens against per-tenant authorities
// and exchanges them for delegated downstream credentials.
type Authenticator struct {
	cfg            *Config
	registry       *tenant.Registry
	broker         *obotoken.Broker
	secretStore    *secrets.Store
	requiredScopes []string
	loggerProvider func(ctx context.Context) log.FieldLogger
	promMetrics    *metrics.PrometheusMetrics
}

type authenticatorOptions struct {
	loggerProvider             func(ctx context.Context) log.FieldLogger
	prometheusLibInstanceLabel string
	httpClient                 *http.Client
	tokenCache                 obotoken.TokenCache
	secretProvider             secrets.Provider
	secretStore                *secrets.Store
}

// Option is an option for creating Authenticator.
type Option func(options *authenticatorOptions)

// WithLoggerProvider sets the logger provider used by all Authenticator subsystems.
func WithLoggerProvider(loggerProvider func(ctx context.Context) log.FieldLogger) Option {
	return func(options *authenticatorOptions) {
		options.loggerProvider = loggerProvider
	}
}

// WithPrometheusLibInstanceLabel sets the Prometheus lib instance label.
func WithPrometheusLibInstanceLabel(label string) Option {
	return func(options *authenticatorOptions) {
		options.prometheusLibInstanceLabel = label
	}
}

// WithHTTPClient sets a custom HTTP client for all identity provider calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(options *authenticatorOptions) {
		options.httpClient = httpClient
	}
}

// WithTokenCache sets a custom delegated token cache.
func WithTokenCache(cache obotoken.TokenCache) Option {
	return func(options *authenticatorOptions) {
		options.tokenCache = cache
	}
}

// WithSecretProvider sets a custom primary secret provider instead of the vault client.
func WithSecretProvider(provider secrets.Provider) Option {
	return func(options *authenticatorOptions) {
		options.secretProvider = provider
	}
}

// WithSecretStore sets a prebuilt secret store instead of constructing one
// from the configuration. Useful when the same store already served
// Config.ResolveSecrets and its cache should be shared.
func WithSecretStore(store *secrets.Store) Option {
	return func(options *authenticatorOptions) {
		options.secretStore = store
	}
}

// NewSecretStore creates the secret store described by the configuration:
// an HTTP vault client when the vault URL is set, with environment fallback.
func NewSecretStore(cfg *Config, opts ...Option) *secrets.Store {
	options := authenticatorOptions{loggerProvider: middleware.GetLoggerFromContext}
	for _, opt := range opts {
		opt(&options)
	}
	if options.secretStore != nil {
		return options.secretStore
	}
	provider := options.secretProvider
	if provider == nil && cfg.Vault.URL != "" {
		httpClient := options.httpClient
		if httpClient == nil {
			httpClient = authutil.MakeDefaultHTTPClient(
				time.Duration(cfg.HTTPClient.RequestTimeout), options.loggerProvider)
		}
		provider = secrets.NewVaultClient(cfg.Vault.URL, secrets.VaultClientOpts{
			HTTPClient:                 httpClient,
			LoggerProvider:             options.loggerProvider,
			PrometheusLibInstanceLabel: options.prometheusLibInstanceLabel,
		})
	}
	return secrets.NewStore(provider, &secrets.EnvProvider{Prefix: cfg.Vault.EnvFallbackPrefix})
}

// New creates an Authenticator from the configuration.
// Misconfiguration (missing home tenant or client id) is reported as an
// ErrorKindConfiguration error and is fatal.
func New(cfg *Config, opts ...Option) (*Authenticator, error) {
	options := authenticatorOptions{loggerProvider: middleware.GetLoggerFromContext}
	for _, opt := range opts {
		opt(&options)
	}

	if cfg.HomeTenantID == "" {
		return nil, NewError(ErrorKindConfiguration, "home tenant id is not configured", nil)
	}
	if cfg.ClientID == "" {
		return nil, NewError(ErrorKindConfiguration, "client id is not configured", nil)
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = authutil.MakeDefaultHTTPClient(
			time.Duration(cfg.HTTPClient.RequestTimeout), options.loggerProvider)
	}

	jwksClient := jwks.NewCachingClientWithOpts(jwks.CachingClientOpts{
		ClientOpts: jwks.ClientOpts{
			HTTPClient:                 httpClient,
			LoggerProvider:             options.loggerProvider,
			PrometheusLibInstanceLabel: options.prometheusLibInstanceLabel,
		},
		CacheUpdateMinInterval: time.Duration(cfg.JWKS.Cache.UpdateMinInterval),
		CacheTTL:               time.Duration(cfg.JWKS.Cache.TTL),
	})

	registry, err := tenant.NewRegistry(cfg.HomeTenantID, jwksClient, tenant.RegistryOpts{
		BaseAuthorityURL:    cfg.BaseAuthorityURL,
		MultiTenantEnabled:  cfg.MultiTenant.Enabled,
		AutoTenantDiscovery: cfg.MultiTenant.AutoDiscovery,
		AllowedTenantIDs:    cfg.MultiTenant.AllowedTenantIDs,
		RequireAudience:     cfg.JWT.RequireAudience,
		ExpectedAudience:    cfg.JWT.ExpectedAudience,
		LoggerProvider:      options.loggerProvider,
	})
	if err != nil {
		return nil, NewError(ErrorKindConfiguration, "create tenant registry", err)
	}

	secretStore := options.secretStore
	if secretStore == nil {
		secretProvider := options.secretProvider
		if secretProvider == nil && cfg.Vault.URL != "" {
			secretProvider = secrets.NewVaultClient(cfg.Vault.URL, secrets.VaultClientOpts{
				HTTPClient:                 httpClient,
				LoggerProvider:             options.loggerProvider,
				PrometheusLibInstanceLabel: options.prometheusLibInstanceLabel,
			})
		}
		secretStore = secrets.NewStore(secretProvider, &secrets.EnvProvider{Prefix: cfg.Vault.EnvFallbackPrefix})
	}

	clientSecretName := cfg.ClientSecretName
	if clientSecretName == "" {
		clientSecretName = DefaultClientSecretName
	}
	broker := obotoken.NewBroker(cfg.ClientID,
		func(ctx context.Context) (string, error) {
			return secretStore.GetSecret(ctx, clientSecretName)
		},
		obotoken.BrokerOpts{
			HTTPClient:                 httpClient,
			BaseAuthorityURL:           cfg.BaseAuthorityURL,
			ExpiryBuffer:               time.Duration(cfg.OBO.ExpiryBuffer),
			Cache:                      options.tokenCache,
			LoggerProvider:             options.loggerProvider,
			PrometheusLibInstanceLabel: options.prometheusLibInstanceLabel,
		})

	return &Authenticator{
		cfg:            cfg,
		registry:       registry,
		broker:         broker,
		secretStore:    secretStore,
		requiredScopes: cfg.RequiredScopes,
		loggerProvider: options.loggerProvider,
		promMetrics: metrics.GetPrometheusMetrics(
			options.prometheusLibInstanceLabel, metrics.SourceGateway),
	}, nil
}

// Registry returns the tenant registry.
func (a *Authenticator) Registry() *tenant.Registry {
	return a.registry
}

// SecretStore returns the secret store used for client credentials.
func (a *Authenticator) SecretStore() *secrets.Store {
	return a.secretStore
}

// Authenticate validates the bearer token and returns the authenticated identity.
//
// The token passes through a fixed pipeline: presence check, unverified issuer
// decode, tenant adapter resolution, signature and claims verification, and
// finally the scope check. The first failing stage rejects the request with a
// kinded error; no network call is made before adapter resolution.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*UserIdentity, error) {
	identity, err := a.authenticate(ctx, token)
	if err != nil {
		a.promMetrics.IncTokenValidationsTotal(validationResultRejected)
		return nil, err
	}
	a.promMetrics.IncTokenValidationsTotal(validationResultOK)
	return identity, nil
}

func (a *Authenticator) authenticate(ctx context.Context, token string) (*UserIdentity, error) {
	if token == "" {
		return nil, NewError(ErrorKindMissingToken, "authorization bearer token is missing", nil)
	}

	// The issuer claim is read without signature verification. It is used only
	// to pick the validator; every security decision happens after that
	// validator has verified the signature against its own pinned authority.
	unverified, err := jwt.DecodeUnverified(token)
	if err != nil {
		return nil, NewError(ErrorKindMalformedToken, "token cannot be decoded", err)
	}

	// A tenant outside the multi-tenant serving policy resolves to the home
	// adapter, so the token still has to verify against home trust material.
	adapter, err := a.registry.ResolveIssuer(ctx, unverified.Issuer)
	if err != nil {
		return nil, NewError(ErrorKindConfiguration, "resolve tenant adapter", err)
	}

	claims, err := adapter.ValidateToken(ctx, token)
	if err != nil {
		return nil, a.classifyValidationError(err)
	}

	if !jwt.HasAnyScope(claims.ScopeSet(), a.requiredScopes) {
		return nil, NewError(ErrorKindScopeInsufficient, "token carries none of the required scopes", nil)
	}

	return newUserIdentity(claims, token), nil
}

func (a *Authenticator) classifyValidationError(err error) error {
	switch {
	case errors.Is(err, jwtgo.ErrTokenExpired):
		return NewError(ErrorKindTokenExpired, "token is expired", err)
	case errors.Is(err, jwtgo.ErrTokenInvalidAudience), errors.Is(err, jwtgo.ErrTokenRequiredClaimMissing):
		var audErr *jwt.AudienceNotExpectedError
		var audMissingErr *jwt.AudienceMissingError
		if errors.As(err, &audErr) || errors.As(err, &audMissingErr) {
			return NewError(ErrorKindAudienceMismatch, "token audience is not accepted", err)
		}
		return NewError(ErrorKindSignatureInvalid, "token validation failed", err)
	case errors.Is(err, jwtgo.ErrTokenMalformed):
		return NewError(ErrorKindMalformedToken, "token cannot be decoded", err)
	default:
		return NewError(ErrorKindSignatureInvalid, "token validation failed", err)
	}
}

// DelegatedToken exchanges the identity's validated token for a delegated
// access token for the given resource via the on-behalf-of flow.
// A delegated token is never minted without an authenticated user.
func (a *Authenticator) DelegatedToken(ctx context.Context, identity *UserIdentity, resource string) (string, error) {
	if identity == nil || identity.RawToken() == "" {
		return "", NewError(ErrorKindCredentialMintFailure,
			"delegated token requires an authenticated user", obotoken.ErrUserAssertionRequired)
	}

	tenantID := identity.TenantID
	if tenantID == "" {
		tenantID = a.registry.HomeTenantID()
	}
	// Delegated tokens are only minted for tenants the registry already trusts.
	if _, served := a.registry.Get(tenantID); !served {
		return "", NewError(ErrorKindUnknownTenant, "token tenant is not served",
			&tenant.UnknownTenantError{TenantID: tenantID})
	}

	token, err := a.broker.GetDelegatedToken(ctx, tenantID, resource, identity.RawToken())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", NewError(ErrorKindUpstreamTimeout, "identity provider did not respond in time", err)
		}
		// The outward message is deliberately generic; the cause keeps the detail for logs.
		return "", NewError(ErrorKindCredentialMintFailure, "delegated token could not be obtained", err)
	}
	return token, nil
}

// InvalidateTenantTokens drops all cached delegated tokens of the tenant.
func (a *Authenticator) InvalidateTenantTokens(tenantID string) {
	a.broker.InvalidateTenant(tenantID)
}

// ClearTokenCache drops all cached delegated tokens.
func (a *Authenticator) ClearTokenCache() {
	a.broker.ClearCache()
}

// SetDefaultLogger sets the default logger for the library.
func SetDefaultLogger(logger log.FieldLogger) {
	authutil.DefaultLogger = logger
}
