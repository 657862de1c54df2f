/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/secopshub/sentriage/internal/authutil"
	"github.com/secopshub/sentriage/internal/metrics"
)

const vaultAPIVersion = "7.4"

// VaultTokenSource provides an access token for calling the vault API.
type VaultTokenSource func(ctx context.Context) (string, error)

// VaultClientOpts contains options for VaultClient.
type VaultClientOpts struct {
	// HTTPClient is an HTTP client for making requests.
	HTTPClient *http.Client

	// TokenSource provides the bearer token for vault API calls.
	TokenSource VaultTokenSource

	// LoggerProvider is a function that provides a logger for the client.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// PrometheusLibInstanceLabel is a label for Prometheus metrics.
	PrometheusLibInstanceLabel string
}

// VaultClient fetches secrets from a Key Vault style REST API:
// GET {vaultURL}/secrets/{name}?api-version=... responding {"value": "..."}.
type VaultClient struct {
	vaultURL       string
	httpClient     *http.Client
	tokenSource    VaultTokenSource
	loggerProvider func(ctx context.Context) log.FieldLogger
	promMetrics    *metrics.PrometheusMetrics
}

// NewVaultClient returns a new VaultClient for the given vault base URL.
func NewVaultClient(vaultURL string, opts VaultClientOpts) *VaultClient {
	promMetrics := metrics.GetPrometheusMetrics(opts.PrometheusLibInstanceLabel, metrics.SourceSecretStore)
	if opts.HTTPClient == nil {
		opts.HTTPClient = authutil.MakeDefaultHTTPClient(authutil.DefaultHTTPRequestTimeout, opts.LoggerProvider)
	}
	return &VaultClient{
		vaultURL:       vaultURL,
		httpClient:     opts.HTTPClient,
		tokenSource:    opts.TokenSource,
		loggerProvider: opts.LoggerProvider,
		promMetrics:    promMetrics,
	}
}

type vaultSecretResponse struct {
	Value string `json:"value"`
}

// GetSecret implements Provider interface.
func (c *VaultClient) GetSecret(ctx context.Context, name string) (string, error) {
	logger := authutil.GetLoggerFromProvider(ctx, c.loggerProvider)

	secretURL := fmt.Sprintf("%s/secrets/%s?api-version=%s", c.vaultURL, url.PathEscape(name), vaultAPIVersion)
	req, err := http.NewRequest(http.MethodGet, secretURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if c.tokenSource != nil {
		token, tokenErr := c.tokenSource(ctx)
		if tokenErr != nil {
			return "", fmt.Errorf("get vault access token: %w", tokenErr)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	elapsed := time.Since(startTime)
	if err != nil {
		c.promMetrics.ObserveHTTPClientRequest(http.MethodGet, secretURL, 0, elapsed, metrics.HTTPRequestErrorDo)
		return "", fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeBodyErr := resp.Body.Close(); closeBodyErr != nil {
			logger.Error(fmt.Sprintf("closing response body error for GET %s", secretURL), log.Error(closeBodyErr))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		c.promMetrics.ObserveHTTPClientRequest(http.MethodGet, secretURL, resp.StatusCode, elapsed, "")
		return "", &NotFoundError{Name: name}
	}
	if resp.StatusCode != http.StatusOK {
		c.promMetrics.ObserveHTTPClientRequest(
			http.MethodGet, secretURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorUnexpectedStatusCode)
		return "", fmt.Errorf("unexpected HTTP code %d", resp.StatusCode)
	}

	var secretResp vaultSecretResponse
	if err = json.NewDecoder(resp.Body).Decode(&secretResp); err != nil {
		c.promMetrics.ObserveHTTPClientRequest(
			http.MethodGet, secretURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorDecodeBody)
		return "", fmt.Errorf("decode response body json: %w", err)
	}

	c.promMetrics.ObserveHTTPClientRequest(http.MethodGet, secretURL, resp.StatusCode, elapsed, "")
	return secretResp.Value, nil
}
