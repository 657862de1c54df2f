/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package sentriage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-appkit/config"

	"github.com/secopshub/sentriage/internal/authutil"
	"github.com/secopshub/sentriage/jwks"
	"github.com/secopshub/sentriage/obotoken"
	"github.com/secopshub/sentriage/secrets"
	"github.com/secopshub/sentriage/tenant"
)

const cfgDefaultKeyPrefix = "auth"

// DefaultClientSecretName is the vault name of the confidential client secret.
const DefaultClientSecretName = "client-secret"

// Vault names under which configuration overrides may be stored.
// See Config.ResolveSecrets.
const (
	SecretNameHomeTenantID        = "azure-home-tenant-id"
	SecretNameClientID            = "azure-client-id"
	SecretNameRequiredScopes      = "required-scopes"
	SecretNameMultiTenantEnabled  = "multi-tenant-enabled"
	SecretNameAutoTenantDiscovery = "enable-auto-tenant-discovery"
)

const (
	cfgKeyHTTPClientRequestTimeout   = "httpClient.requestTimeout"
	cfgKeyHomeTenantID               = "homeTenantId"
	cfgKeyClientID                   = "clientId"
	cfgKeyClientSecretName           = "clientSecretName" // nolint:gosec // it's a secret name, not a secret
	cfgKeyBaseAuthorityURL           = "baseAuthorityUrl"
	cfgKeyRequiredScopes             = "requiredScopes"
	cfgKeyMultiTenantEnabled         = "multiTenant.enabled"
	cfgKeyMultiTenantAutoDiscovery   = "multiTenant.autoDiscovery"
	cfgKeyMultiTenantAllowedTenants  = "multiTenant.allowedTenantIds"
	cfgKeyJWTRequireAudience         = "jwt.requireAudience"
	cfgKeyJWTExpectedAudience        = "jwt.expectedAudience"
	cfgKeyJWKSCacheUpdateMinInterval = "jwks.cache.updateMinInterval"
	cfgKeyJWKSCacheTTL               = "jwks.cache.ttl"
	cfgKeyOBOExpiryBuffer            = "obo.expiryBuffer"
	cfgKeyVaultURL                   = "vault.url"
	cfgKeyVaultEnvFallbackPrefix     = "vault.envFallbackPrefix"
)

// Config represents a set of configuration parameters for request authentication
// and delegated credential brokering.
type Config struct {
	HTTPClient HTTPClientConfig `mapstructure:"httpClient" yaml:"httpClient" json:"httpClient"`

	// HomeTenantID is the tenant this deployment belongs to. It is mandatory.
	HomeTenantID string `mapstructure:"homeTenantId" yaml:"homeTenantId" json:"homeTenantId"`

	// ClientID is the application (client) id used in on-behalf-of token exchange.
	ClientID string `mapstructure:"clientId" yaml:"clientId" json:"clientId"`

	// ClientSecretName is the vault name of the client secret. DefaultClientSecretName is used when empty.
	ClientSecretName string `mapstructure:"clientSecretName" yaml:"clientSecretName" json:"clientSecretName"`

	// BaseAuthorityURL is the base of per-tenant authority URLs.
	BaseAuthorityURL string `mapstructure:"baseAuthorityUrl" yaml:"baseAuthorityUrl" json:"baseAuthorityUrl"`

	// RequiredScopes is the set of scopes accepted on inbound tokens.
	// A token passes when it carries at least one of them; an empty set disables the check.
	RequiredScopes []string `mapstructure:"requiredScopes" yaml:"requiredScopes" json:"requiredScopes"`

	MultiTenant MultiTenantConfig `mapstructure:"multiTenant" yaml:"multiTenant" json:"multiTenant"`
	JWT         JWTConfig         `mapstructure:"jwt" yaml:"jwt" json:"jwt"`
	JWKS        JWKSConfig        `mapstructure:"jwks" yaml:"jwks" json:"jwks"`
	OBO         OBOConfig         `mapstructure:"obo" yaml:"obo" json:"obo"`
	Vault       VaultConfig       `mapstructure:"vault" yaml:"vault" json:"vault"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// MultiTenantConfig controls serving tokens from tenants other than the home one.
type MultiTenantConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AutoDiscovery    bool     `mapstructure:"autoDiscovery" yaml:"autoDiscovery" json:"autoDiscovery"`
	AllowedTenantIDs []string `mapstructure:"allowedTenantIds" yaml:"allowedTenantIds" json:"allowedTenantIds"`
}

// JWTConfig is a configuration of how inbound JWT claims will be verified.
type JWTConfig struct {
	RequireAudience  bool     `mapstructure:"requireAudience" yaml:"requireAudience" json:"requireAudience"`
	ExpectedAudience []string `mapstructure:"expectedAudience" yaml:"expectedAudience" json:"expectedAudience"`
}

// JWKSConfig is a configuration of how JWKS will be cached.
type JWKSConfig struct {
	Cache JWKSCacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`
}

type JWKSCacheConfig struct {
	UpdateMinInterval config.TimeDuration `mapstructure:"updateMinInterval" yaml:"updateMinInterval" json:"updateMinInterval"`
	TTL               config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// OBOConfig is a configuration of the on-behalf-of token exchange.
type OBOConfig struct {
	// ExpiryBuffer is subtracted from delegated token expiry when checking cache freshness.
	ExpiryBuffer config.TimeDuration `mapstructure:"expiryBuffer" yaml:"expiryBuffer" json:"expiryBuffer"`
}

// VaultConfig is a configuration of the secret vault.
// An empty URL disables the vault; secrets are then resolved from the environment only.
type VaultConfig struct {
	URL               string `mapstructure:"url" yaml:"url" json:"url"`
	EnvFallbackPrefix string `mapstructure:"envFallbackPrefix" yaml:"envFallbackPrefix" json:"envFallbackPrefix"`
}

type HTTPClientConfig struct {
	RequestTimeout config.TimeDuration `mapstructure:"requestTimeout" yaml:"requestTimeout" json:"requestTimeout"`
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix: opts.keyPrefix,
		HTTPClient: HTTPClientConfig{
			RequestTimeout: config.TimeDuration(authutil.DefaultHTTPRequestTimeout),
		},
		ClientSecretName: DefaultClientSecretName,
		BaseAuthorityURL: tenant.DefaultBaseAuthorityURL,
		JWKS: JWKSConfig{
			Cache: JWKSCacheConfig{
				UpdateMinInterval: config.TimeDuration(jwks.DefaultCacheUpdateMinInterval),
				TTL:               config.TimeDuration(jwks.DefaultCacheTTL),
			},
		},
		OBO: OBOConfig{
			ExpiryBuffer: config.TimeDuration(obotoken.DefaultExpiryBuffer),
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyHTTPClientRequestTimeout, authutil.DefaultHTTPRequestTimeout.String())
	dp.SetDefault(cfgKeyClientSecretName, DefaultClientSecretName)
	dp.SetDefault(cfgKeyBaseAuthorityURL, tenant.DefaultBaseAuthorityURL)
	dp.SetDefault(cfgKeyJWKSCacheUpdateMinInterval, jwks.DefaultCacheUpdateMinInterval.String())
	dp.SetDefault(cfgKeyJWKSCacheTTL, jwks.DefaultCacheTTL.String())
	dp.SetDefault(cfgKeyOBOExpiryBuffer, obotoken.DefaultExpiryBuffer.String())
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	var reqDuration time.Duration
	if reqDuration, err = dp.GetDuration(cfgKeyHTTPClientRequestTimeout); err != nil {
		return err
	}
	c.HTTPClient.RequestTimeout = config.TimeDuration(reqDuration)

	if c.HomeTenantID, err = dp.GetString(cfgKeyHomeTenantID); err != nil {
		return err
	}
	if c.ClientID, err = dp.GetString(cfgKeyClientID); err != nil {
		return err
	}
	if c.ClientSecretName, err = dp.GetString(cfgKeyClientSecretName); err != nil {
		return err
	}
	if c.BaseAuthorityURL, err = dp.GetString(cfgKeyBaseAuthorityURL); err != nil {
		return err
	}
	if _, err = url.Parse(c.BaseAuthorityURL); err != nil {
		return dp.WrapKeyErr(cfgKeyBaseAuthorityURL, err)
	}
	if c.RequiredScopes, err = dp.GetStringSlice(cfgKeyRequiredScopes); err != nil {
		return err
	}

	if err = c.setMultiTenantConfig(dp); err != nil {
		return err
	}
	if err = c.setJWTConfig(dp); err != nil {
		return err
	}
	if err = c.setJWKSConfig(dp); err != nil {
		return err
	}
	if err = c.setOBOConfig(dp); err != nil {
		return err
	}
	return c.setVaultConfig(dp)
}

func (c *Config) setMultiTenantConfig(dp config.DataProvider) error {
	var err error

	if c.MultiTenant.Enabled, err = dp.GetBool(cfgKeyMultiTenantEnabled); err != nil {
		return err
	}
	if c.MultiTenant.AutoDiscovery, err = dp.GetBool(cfgKeyMultiTenantAutoDiscovery); err != nil {
		return err
	}
	if c.MultiTenant.AllowedTenantIDs, err = dp.GetStringSlice(cfgKeyMultiTenantAllowedTenants); err != nil {
		return err
	}
	return nil
}

func (c *Config) setJWTConfig(dp config.DataProvider) error {
	var err error

	if c.JWT.RequireAudience, err = dp.GetBool(cfgKeyJWTRequireAudience); err != nil {
		return err
	}
	if c.JWT.ExpectedAudience, err = dp.GetStringSlice(cfgKeyJWTExpectedAudience); err != nil {
		return err
	}
	return nil
}

func (c *Config) setJWKSConfig(dp config.DataProvider) error {
	updateMinInterval, err := dp.GetDuration(cfgKeyJWKSCacheUpdateMinInterval)
	if err != nil {
		return err
	}
	c.JWKS.Cache.UpdateMinInterval = config.TimeDuration(updateMinInterval)

	cacheTTL, err := dp.GetDuration(cfgKeyJWKSCacheTTL)
	if err != nil {
		return err
	}
	c.JWKS.Cache.TTL = config.TimeDuration(cacheTTL)
	return nil
}

func (c *Config) setOBOConfig(dp config.DataProvider) error {
	expiryBuffer, err := dp.GetDuration(cfgKeyOBOExpiryBuffer)
	if err != nil {
		return err
	}
	if expiryBuffer < 0 {
		return dp.WrapKeyErr(cfgKeyOBOExpiryBuffer, fmt.Errorf("expiry buffer should be non-negative"))
	}
	c.OBO.ExpiryBuffer = config.TimeDuration(expiryBuffer)
	return nil
}

// ResolveSecrets overrides configuration values with secrets from the store.
// Each value is looked up under its well-known vault name; a name absent from
// both the store's provider and its environment fallback leaves the configured
// value untouched. The client secret itself is not resolved here: the broker
// reads it from the store on demand, so a rotated secret is picked up without
// a restart.
func (c *Config) ResolveSecrets(ctx context.Context, store *secrets.Store) error {
	if err := resolveSecretString(ctx, store, SecretNameHomeTenantID, &c.HomeTenantID); err != nil {
		return err
	}
	if err := resolveSecretString(ctx, store, SecretNameClientID, &c.ClientID); err != nil {
		return err
	}

	if value, found, err := lookupSecret(ctx, store, SecretNameRequiredScopes); err != nil {
		return err
	} else if found {
		c.RequiredScopes = splitScopes(value)
	}

	if err := resolveSecretBool(ctx, store, SecretNameMultiTenantEnabled, &c.MultiTenant.Enabled); err != nil {
		return err
	}
	return resolveSecretBool(ctx, store, SecretNameAutoTenantDiscovery, &c.MultiTenant.AutoDiscovery)
}

func lookupSecret(ctx context.Context, store *secrets.Store, name string) (string, bool, error) {
	value, err := store.GetSecret(ctx, name)
	if err != nil {
		var notFoundErr *secrets.NotFoundError
		if errors.As(err, &notFoundErr) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get secret %q: %w", name, err)
	}
	return value, true, nil
}

func resolveSecretString(ctx context.Context, store *secrets.Store, name string, target *string) error {
	value, found, err := lookupSecret(ctx, store, name)
	if err != nil {
		return err
	}
	if found {
		*target = value
	}
	return nil
}

func resolveSecretBool(ctx context.Context, store *secrets.Store, name string, target *bool) error {
	value, found, err := lookupSecret(ctx, store, name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("parse secret %q as bool: %w", name, err)
	}
	*target = parsed
	return nil
}

func splitScopes(value string) []string {
	var scopes []string
	for _, scope := range strings.Split(value, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

func (c *Config) setVaultConfig(dp config.DataProvider) error {
	var err error

	if c.Vault.URL, err = dp.GetString(cfgKeyVaultURL); err != nil {
		return err
	}
	if c.Vault.URL != "" {
		if _, err = url.Parse(c.Vault.URL); err != nil {
			return dp.WrapKeyErr(cfgKeyVaultURL, err)
		}
	}
	if c.Vault.EnvFallbackPrefix, err = dp.GetString(cfgKeyVaultEnvFallbackPrefix); err != nil {
		return err
	}
	return nil
}
