/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package sentriage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtgo "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/secopshub/sentriage/idptest"
	"github.com/secopshub/sentriage/jwt"
	"github.com/secopshub/sentriage/obotoken"
	"github.com/secopshub/sentriage/secrets"
)

const (
	testHomeTenantID    = "72f988bf-86f1-41af-91ab-2d7cd011db47"
	testForeignTenantID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	testClientID        = "11111111-2222-3333-4444-555555555555"
	testRequiredScope   = "access_as_user"
)

// startTenantIDP starts a mock identity provider that serves OpenID discovery
// for the given tenants, all backed by the same test signing key.
// The returned counter tracks every request the provider receives.
func startTenantIDP(t *testing.T, tokenHandler http.Handler, tenantIDs ...string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	mux := http.NewServeMux()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		mux.ServeHTTP(rw, r)
	}))
	t.Cleanup(srv.Close)

	for _, tenantID := range tenantIDs {
		cfgHandler := &idptest.OpenIDConfigurationHandler{
			Issuer:           srv.URL + "/" + tenantID + "/v2.0",
			JWKSURL:          srv.URL + idptest.JWKSEndpointPath,
			TokenEndpointURL: srv.URL + idptest.TokenEndpointPath,
		}
		mux.Handle("/"+tenantID+"/v2.0"+idptest.OpenIDConfigurationPath, cfgHandler)
	}
	mux.Handle(idptest.JWKSEndpointPath, &idptest.JWKSHandler{})
	if tokenHandler != nil {
		mux.Handle(idptest.TokenEndpointPath, tokenHandler)
	}
	return srv, &requests
}

func newTestAuthenticator(t *testing.T, srv *httptest.Server, mutate func(cfg *Config)) *Authenticator {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.HomeTenantID = testHomeTenantID
	cfg.ClientID = testClientID
	cfg.BaseAuthorityURL = srv.URL
	cfg.RequiredScopes = []string{testRequiredScope}
	if mutate != nil {
		mutate(cfg)
	}
	authenticator, err := New(cfg,
		WithHTTPClient(srv.Client()),
		WithSecretProvider(secrets.ProviderFunc(func(ctx context.Context, name string) (string, error) {
			return "test-client-secret", nil
		})))
	require.NoError(t, err)
	return authenticator
}

func makeUserClaims(tenantID string, mutate func(claims *jwt.Claims)) *jwt.Claims {
	claims := &jwt.Claims{
		RegisteredClaims: jwtgo.RegisteredClaims{
			Issuer:    "https://login.microsoftonline.com/" + tenantID + "/v2.0",
			Subject:   "user-1",
			ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ObjectID: "b24dfcf1-2c05-4cb5-b44c-09e7e2315d9d",
		Name:     "Dana Analyst",
		Email:    "dana@contoso.example",
		Scope:    testRequiredScope,
		TenantID: tenantID,
	}
	if mutate != nil {
		mutate(claims)
	}
	return claims
}

func mustMakeUserToken(t *testing.T, tenantID string, mutate func(claims *jwt.Claims)) string {
	t.Helper()
	return idptest.MustMakeTokenStringSignedWithTestKey(makeUserClaims(tenantID, mutate))
}

func TestNew(t *testing.T) {
	t.Run("home tenant id is required", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ClientID = testClientID
		_, err := New(cfg)
		require.True(t, IsErrorKind(err, ErrorKindConfiguration))
	})

	t.Run("client id is required", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.HomeTenantID = testHomeTenantID
		_, err := New(cfg)
		require.True(t, IsErrorKind(err, ErrorKindConfiguration))
	})
}

func TestAuthenticatorAuthenticate(t *testing.T) {
	srv, _ := startTenantIDP(t, nil, testHomeTenantID)

	t.Run("missing token", func(t *testing.T) {
		idpSrv, idpRequests := startTenantIDP(t, nil, testHomeTenantID)
		authenticator := newTestAuthenticator(t, idpSrv, nil)
		_, err := authenticator.Authenticate(context.Background(), "")
		require.True(t, IsErrorKind(err, ErrorKindMissingToken))
		require.Zero(t, idpRequests.Load(),
			"rejecting a request without a token must not call the identity provider")
	})

	t.Run("malformed token", func(t *testing.T) {
		authenticator := newTestAuthenticator(t, srv, nil)
		_, err := authenticator.Authenticate(context.Background(), "not-a-jwt")
		require.True(t, IsErrorKind(err, ErrorKindMalformedToken))
	})

	t.Run("expired token", func(t *testing.T) {
		authenticator := newTestAuthenticator(t, srv, nil)
		token := mustMakeUserToken(t, testHomeTenantID, func(claims *jwt.Claims) {
			claims.ExpiresAt = jwtgo.NewNumericDate(time.Now().Add(-time.Minute))
		})
		_, err := authenticator.Authenticate(context.Background(), token)
		require.True(t, IsErrorKind(err, ErrorKindTokenExpired))
	})

	t.Run("insufficient scope", func(t *testing.T) {
		authenticator := newTestAuthenticator(t, srv, nil)
		token := mustMakeUserToken(t, testHomeTenantID, func(claims *jwt.Claims) {
			claims.Scope = "some.other.scope"
		})
		_, err := authenticator.Authenticate(context.Background(), token)
		require.True(t, IsErrorKind(err, ErrorKindScopeInsufficient))
	})

	t.Run("audience mismatch", func(t *testing.T) {
		authenticator := newTestAuthenticator(t, srv, func(cfg *Config) {
			cfg.JWT.RequireAudience = true
			cfg.JWT.ExpectedAudience = []string{"api://triage-*"}
		})
		token := mustMakeUserToken(t, testHomeTenantID, func(claims *jwt.Claims) {
			claims.Audience = jwtgo.ClaimStrings{"api://some-other-app"}
		})
		_, err := authenticator.Authenticate(context.Background(), token)
		require.True(t, IsErrorKind(err, ErrorKindAudienceMismatch))
	})

	t.Run("foreign tenant falls back to home trust material in single-tenant mode", func(t *testing.T) {
		authenticator := newTestAuthenticator(t, srv, nil)
		// The foreign tenant's key differs from the home tenant's published one,
		// so validation against the home adapter must fail on the signature.
		foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		token := idptest.MustMakeTokenStringWithHeader(
			makeUserClaims(testForeignTenantID, nil), idptest.GetTestKeyID(), foreignKey, nil)

		_, err = authenticator.Authenticate(context.Background(), token)
		require.True(t, IsErrorKind(err, ErrorKindSignatureInvalid))
	})

	t.Run("ok", func(t *testing.T) {
		authenticator := newTestAuthenticator(t, srv, nil)
		token := mustMakeUserToken(t, testHomeTenantID, nil)

		identity, err := authenticator.Authenticate(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, "b24dfcf1-2c05-4cb5-b44c-09e7e2315d9d", identity.ID)
		require.Equal(t, "Dana Analyst", identity.Name)
		require.Equal(t, "dana@contoso.example", identity.Email)
		require.Equal(t, []string{testRequiredScope}, identity.Scopes)
		require.Equal(t, testHomeTenantID, identity.TenantID)
		require.Equal(t, token, identity.RawToken())
	})

	t.Run("foreign tenant with auto discovery", func(t *testing.T) {
		multiSrv, _ := startTenantIDP(t, nil, testHomeTenantID, testForeignTenantID)
		authenticator := newTestAuthenticator(t, multiSrv, func(cfg *Config) {
			cfg.MultiTenant.Enabled = true
			cfg.MultiTenant.AutoDiscovery = true
		})
		token := mustMakeUserToken(t, testForeignTenantID, nil)

		identity, err := authenticator.Authenticate(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, testForeignTenantID, identity.TenantID)
	})
}

func TestAuthenticatorDelegatedToken(t *testing.T) {
	const testResource = "https://graph.microsoft.com"

	t.Run("requires an authenticated user", func(t *testing.T) {
		srv, _ := startTenantIDP(t, &idptest.TokenHandler{}, testHomeTenantID)
		authenticator := newTestAuthenticator(t, srv, nil)

		_, err := authenticator.DelegatedToken(context.Background(), nil, testResource)
		require.True(t, IsErrorKind(err, ErrorKindCredentialMintFailure))
		require.ErrorIs(t, err, obotoken.ErrUserAssertionRequired)
	})

	t.Run("refuses unserved tenant", func(t *testing.T) {
		srv, _ := startTenantIDP(t, &idptest.TokenHandler{}, testHomeTenantID)
		authenticator := newTestAuthenticator(t, srv, nil)

		identity := &UserIdentity{TenantID: testForeignTenantID, rawToken: "some-token"}
		_, err := authenticator.DelegatedToken(context.Background(), identity, testResource)
		require.True(t, IsErrorKind(err, ErrorKindUnknownTenant))
	})

	t.Run("mints and caches", func(t *testing.T) {
		tokenHandler := &idptest.TokenHandler{}
		srv, _ := startTenantIDP(t, tokenHandler, testHomeTenantID)
		authenticator := newTestAuthenticator(t, srv, nil)

		identity, err := authenticator.Authenticate(context.Background(),
			mustMakeUserToken(t, testHomeTenantID, nil))
		require.NoError(t, err)

		delegated, err := authenticator.DelegatedToken(context.Background(), identity, testResource)
		require.NoError(t, err)
		require.NotEmpty(t, delegated)
		require.NotEqual(t, identity.RawToken(), delegated)

		cached, err := authenticator.DelegatedToken(context.Background(), identity, testResource)
		require.NoError(t, err)
		require.Equal(t, delegated, cached)
		require.EqualValues(t, 1, tokenHandler.ServedCount())

		authenticator.InvalidateTenantTokens(testHomeTenantID)
		_, err = authenticator.DelegatedToken(context.Background(), identity, testResource)
		require.NoError(t, err)
		require.EqualValues(t, 2, tokenHandler.ServedCount())
	})

	t.Run("identity provider timeout", func(t *testing.T) {
		slowHandler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			(&idptest.TokenHandler{}).ServeHTTP(rw, r)
		})
		srv, _ := startTenantIDP(t, slowHandler, testHomeTenantID)
		authenticator := newTestAuthenticator(t, srv, nil)

		identity, err := authenticator.Authenticate(context.Background(),
			mustMakeUserToken(t, testHomeTenantID, nil))
		require.NoError(t, err)

		// Warm up the token endpoint discovery so only the mint request runs
		// against the deadline below.
		_, err = authenticator.DelegatedToken(context.Background(), identity, testResource)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err = authenticator.DelegatedToken(ctx, identity, "https://management.azure.com")
		require.True(t, IsErrorKind(err, ErrorKindUpstreamTimeout))
	})
}
