/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package obotoken exchanges validated user tokens for delegated downstream
// credentials using the OAuth 2.0 on-behalf-of flow, with per-(tenant, resource)
// caching of the minted tokens.
package obotoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
	"golang.org/x/sync/singleflight"

	"github.com/secopshub/sentriage/internal/authutil"
	"github.com/secopshub/sentriage/internal/metrics"
	"github.com/secopshub/sentriage/tenant"
)

const (
	grantTypeJWTBearer  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	tokenUseOnBehalfOf  = "on_behalf_of"
	defaultScopeSuffix  = "/.default"
	mintResultHit       = "cache_hit"
	mintResultMinted    = "minted"
	mintResultError     = "error"
	mintResultNoSubject = "no_subject"
)

// ErrUserAssertionRequired is returned when a delegated token is requested without a user token.
// The on-behalf-of flow always acts for a concrete user; there is no application-only fallback.
var ErrUserAssertionRequired = errors.New("cannot mint delegated token without user assertion")

// UnexpectedIDPResponseError is an error representing an unexpected token endpoint response.
type UnexpectedIDPResponseError struct {
	HTTPCode         int
	TokenURL         string
	ErrorCode        string
	ErrorDescription string
}

func (e *UnexpectedIDPResponseError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s responded with unexpected code %d (%s: %s)",
			e.TokenURL, e.HTTPCode, e.ErrorCode, e.ErrorDescription)
	}
	return fmt.Sprintf("%s responded with unexpected code %d", e.TokenURL, e.HTTPCode)
}

// SecretSource provides the confidential client secret used in token exchange.
type SecretSource func(ctx context.Context) (string, error)

// BrokerOpts contains options for Broker.
type BrokerOpts struct {
	// HTTPClient is an HTTP client for making requests.
	HTTPClient *http.Client

	// BaseAuthorityURL is the base of per-tenant authority URLs.
	// tenant.DefaultBaseAuthorityURL is used when empty.
	BaseAuthorityURL string

	// ExpiryBuffer is subtracted from token expiry when checking cache freshness.
	// DefaultExpiryBuffer is used when it is not positive.
	ExpiryBuffer time.Duration

	// Cache is a custom token cache instance. InMemoryTokenCache is used when nil.
	Cache TokenCache

	// LoggerProvider is a function that provides a logger for the Broker.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// PrometheusLibInstanceLabel is a label for Prometheus metrics.
	PrometheusLibInstanceLabel string
}

// Broker mints delegated tokens via the on-behalf-of flow.
// Minted tokens are cached per (tenant, resource) and refreshed when they get
// within the expiry buffer of their expiration. Concurrent requests for the
// same (tenant, resource) result in a single token endpoint call.
type Broker struct {
	clientID     string
	clientSecret SecretSource

	httpClient       *http.Client
	baseAuthorityURL string
	expiryBuffer     time.Duration
	cache            TokenCache
	loggerProvider   func(ctx context.Context) log.FieldLogger
	promMetrics      *metrics.PrometheusMetrics

	sfGroup singleflight.Group

	endpointsMu    sync.RWMutex
	tokenEndpoints map[string]string
}

// NewBroker creates a new Broker for the confidential client.
func NewBroker(clientID string, clientSecret SecretSource, opts BrokerOpts) *Broker {
	promMetrics := metrics.GetPrometheusMetrics(opts.PrometheusLibInstanceLabel, metrics.SourceOBOBroker)
	if opts.HTTPClient == nil {
		opts.HTTPClient = authutil.MakeDefaultHTTPClient(authutil.DefaultHTTPRequestTimeout, opts.LoggerProvider)
	}
	if opts.BaseAuthorityURL == "" {
		opts.BaseAuthorityURL = tenant.DefaultBaseAuthorityURL
	}
	if opts.ExpiryBuffer <= 0 {
		opts.ExpiryBuffer = DefaultExpiryBuffer
	}
	if opts.Cache == nil {
		opts.Cache = NewInMemoryTokenCache()
	}
	return &Broker{
		clientID:         clientID,
		clientSecret:     clientSecret,
		httpClient:       opts.HTTPClient,
		baseAuthorityURL: opts.BaseAuthorityURL,
		expiryBuffer:     opts.ExpiryBuffer,
		cache:            opts.Cache,
		loggerProvider:   opts.LoggerProvider,
		promMetrics:      promMetrics,
		tokenEndpoints:   make(map[string]string),
	}
}

// GetDelegatedToken returns a delegated access token for the resource,
// minted on behalf of the user represented by userAssertion.
// A fresh cached token is returned without a network call.
func (b *Broker) GetDelegatedToken(ctx context.Context, tenantID, resource, userAssertion string) (string, error) {
	if userAssertion == "" {
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultNoSubject)
		return "", ErrUserAssertionRequired
	}

	key := CacheKey{TenantID: tenantID, Resource: resource}
	if token, found := b.cache.Get(key); found && token.IsFresh(time.Now(), b.expiryBuffer) {
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultHit)
		return token.AccessToken, nil
	}

	v, err, _ := b.sfGroup.Do(tenantID+"\x00"+resource, func() (interface{}, error) {
		// Another waiter may have already refreshed the token.
		if token, found := b.cache.Get(key); found && token.IsFresh(time.Now(), b.expiryBuffer) {
			return token.AccessToken, nil
		}
		return b.mintToken(ctx, key, userAssertion)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateTenant removes all cached tokens of the tenant.
func (b *Broker) InvalidateTenant(tenantID string) {
	if c, ok := b.cache.(*InMemoryTokenCache); ok {
		c.mu.Lock()
		for key := range c.items {
			if key.TenantID == tenantID {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
		return
	}
	b.cache.ClearAll()
}

// ClearCache removes all cached delegated tokens.
func (b *Broker) ClearCache() {
	b.cache.ClearAll()
}

func (b *Broker) mintToken(ctx context.Context, key CacheKey, userAssertion string) (string, error) {
	logger := authutil.GetLoggerFromProvider(ctx, b.loggerProvider)

	tokenURL, err := b.ensureTokenEndpoint(ctx, key.TenantID)
	if err != nil {
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultError)
		return "", err
	}

	secret, err := b.clientSecret(ctx)
	if err != nil {
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultError)
		return "", fmt.Errorf("get client secret: %w", err)
	}

	values := url.Values{}
	values.Set("grant_type", grantTypeJWTBearer)
	values.Set("client_id", b.clientID)
	values.Set("client_secret", secret)
	values.Set("assertion", userAssertion)
	values.Set("scope", scopeForResource(key.Resource))
	values.Set("requested_token_use", tokenUseOnBehalfOf)

	req, err := http.NewRequest(http.MethodPost, tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultError)
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	startTime := time.Now()
	resp, err := b.httpClient.Do(req.WithContext(ctx))
	elapsed := time.Since(startTime)
	if err != nil {
		b.promMetrics.ObserveHTTPClientRequest(http.MethodPost, tokenURL, 0, elapsed, metrics.HTTPRequestErrorDo)
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultError)
		return "", fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeBodyErr := resp.Body.Close(); closeBodyErr != nil {
			logger.Error(fmt.Sprintf("closing response body error for POST %s", tokenURL), log.Error(closeBodyErr))
		}
	}()

	var tokenResp tokenResponseBody
	if err = json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		b.promMetrics.ObserveHTTPClientRequest(
			http.MethodPost, tokenURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorDecodeBody)
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultError)
		return "", fmt.Errorf("decode response body json: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		b.promMetrics.ObserveHTTPClientRequest(
			http.MethodPost, tokenURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorUnexpectedStatusCode)
		b.promMetrics.IncDelegatedTokenMintsTotal(mintResultError)
		return "", &UnexpectedIDPResponseError{
			HTTPCode:         resp.StatusCode,
			TokenURL:         tokenURL,
			ErrorCode:        tokenResp.Error,
			ErrorDescription: tokenResp.ErrorDescription,
		}
	}
	b.promMetrics.ObserveHTTPClientRequest(http.MethodPost, tokenURL, resp.StatusCode, elapsed, "")

	if tokenResp.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Second * time.Duration(tokenResp.ExpiresIn))
		b.cache.Put(key, CachedToken{AccessToken: tokenResp.AccessToken, ExpiresAt: expiresAt})
		logger.Infof("(%s, %s): minted delegated token, expires on %s",
			key.TenantID, key.Resource, expiresAt.UTC())
	} else {
		// Without an expiry the token cannot be safely cached; serve it once.
		logger.Warnf("(%s, %s): token endpoint returned no expires_in, token will not be cached",
			key.TenantID, key.Resource)
	}
	b.promMetrics.IncDelegatedTokenMintsTotal(mintResultMinted)
	return tokenResp.AccessToken, nil
}

func (b *Broker) ensureTokenEndpoint(ctx context.Context, tenantID string) (string, error) {
	b.endpointsMu.RLock()
	tokenURL, found := b.tokenEndpoints[tenantID]
	b.endpointsMu.RUnlock()
	if found {
		return tokenURL, nil
	}

	authority := tenant.AuthorityURL(b.baseAuthorityURL, tenantID)
	openIDCfgURL := authutil.OpenIDConfigurationURL(authority)
	logger := authutil.GetLoggerFromProvider(ctx, b.loggerProvider)
	openIDCfg, err := authutil.GetOpenIDConfiguration(ctx, b.httpClient, openIDCfgURL, logger, b.promMetrics)
	if err != nil {
		return "", fmt.Errorf("get OpenID configuration for tenant %q: %w", tenantID, err)
	}
	if _, err = url.ParseRequestURI(openIDCfg.TokenURL); err != nil {
		return "", fmt.Errorf("tenant %q authority returned a non-valid token endpoint URL %q: %w",
			tenantID, openIDCfg.TokenURL, err)
	}

	b.endpointsMu.Lock()
	b.tokenEndpoints[tenantID] = openIDCfg.TokenURL
	b.endpointsMu.Unlock()
	return openIDCfg.TokenURL, nil
}

// scopeForResource maps a resource identifier to the scope requested in token exchange.
// A bare resource ("https://graph.microsoft.com") gets the ".default" scope;
// a value that already looks like a scope is passed through.
func scopeForResource(resource string) string {
	if strings.Contains(resource, defaultScopeSuffix) || strings.Contains(resource, " ") {
		return resource
	}
	return strings.TrimSuffix(resource, "/") + defaultScopeSuffix
}

type tokenResponseBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
