/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package obotoken_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtgo "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/secopshub/sentriage/idptest"
	"github.com/secopshub/sentriage/obotoken"
)

const (
	testTenantID = "72f988bf-86f1-41af-91ab-2d7cd011db47"
	testResource = "https://graph.microsoft.com"
)

func testUserAssertion(t *testing.T) string {
	t.Helper()
	return idptest.MustMakeTokenStringSignedWithTestKey(&jwtgo.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwtgo.NewNumericDate(time.Now().Add(time.Minute)),
	})
}

// newTenantIDPServer serves per-tenant OpenID discovery alongside the token endpoint,
// mirroring the authority URL layout of a real identity provider.
func newTenantIDPServer(t *testing.T, tokenHandler http.Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/"+testTenantID+"/v2.0/.well-known/openid-configuration",
		func(rw http.ResponseWriter, r *http.Request) {
			cfgHandler := &idptest.OpenIDConfigurationHandler{
				Issuer:           srv.URL + "/" + testTenantID + "/v2.0",
				JWKSURL:          srv.URL + idptest.JWKSEndpointPath,
				TokenEndpointURL: srv.URL + idptest.TokenEndpointPath,
			}
			cfgHandler.ServeHTTP(rw, r)
		})
	mux.Handle(idptest.JWKSEndpointPath, &idptest.JWKSHandler{})
	mux.Handle(idptest.TokenEndpointPath, tokenHandler)
	return srv
}

func TestBrokerGetDelegatedToken(t *testing.T) {
	t.Run("refuses to mint without user assertion", func(t *testing.T) {
		tokenHandler := &idptest.TokenHandler{}
		srv := newTenantIDPServer(t, tokenHandler)
		broker := newTestBroker(srv, obotoken.BrokerOpts{})

		_, err := broker.GetDelegatedToken(context.Background(), testTenantID, testResource, "")
		require.ErrorIs(t, err, obotoken.ErrUserAssertionRequired)
		require.EqualValues(t, 0, tokenHandler.ServedCount(), "no token endpoint call should happen")
	})

	t.Run("mints and caches per (tenant, resource)", func(t *testing.T) {
		tokenHandler := &idptest.TokenHandler{}
		srv := newTenantIDPServer(t, tokenHandler)
		broker := newTestBroker(srv, obotoken.BrokerOpts{})

		token1, err := broker.GetDelegatedToken(context.Background(), testTenantID, testResource, testUserAssertion(t))
		require.NoError(t, err)
		require.NotEmpty(t, token1)
		require.EqualValues(t, 1, tokenHandler.ServedCount())

		token2, err := broker.GetDelegatedToken(context.Background(), testTenantID, testResource, testUserAssertion(t))
		require.NoError(t, err)
		require.Equal(t, token1, token2)
		require.EqualValues(t, 1, tokenHandler.ServedCount(), "second call must be served from cache")
	})

	t.Run("different resource mints a different token", func(t *testing.T) {
		tokenHandler := &idptest.TokenHandler{}
		srv := newTenantIDPServer(t, tokenHandler)
		broker := newTestBroker(srv, obotoken.BrokerOpts{})

		_, err := broker.GetDelegatedToken(context.Background(), testTenantID, testResource, testUserAssertion(t))
		require.NoError(t, err)
		_, err = broker.GetDelegatedToken(context.Background(), testTenantID,
			"https://management.azure.com", testUserAssertion(t))
		require.NoError(t, err)
		require.EqualValues(t, 2, tokenHandler.ServedCount())
	})

	t.Run("token within expiry buffer is re-minted", func(t *testing.T) {
		tokenHandler := &idptest.TokenHandler{}
		srv := newTenantIDPServer(t, tokenHandler)
		cache := obotoken.NewInMemoryTokenCache()
		broker := newTestBroker(srv, obotoken.BrokerOpts{Cache: cache})

		// Seed a token that expires within the buffer; it must not be served.
		cache.Put(obotoken.CacheKey{TenantID: testTenantID, Resource: testResource}, obotoken.CachedToken{
			AccessToken: "stale-token",
			ExpiresAt:   time.Now().Add(obotoken.DefaultExpiryBuffer - time.Second),
		})

		token, err := broker.GetDelegatedToken(context.Background(), testTenantID, testResource, testUserAssertion(t))
		require.NoError(t, err)
		require.NotEqual(t, "stale-token", token)
		require.EqualValues(t, 1, tokenHandler.ServedCount())
	})

	t.Run("concurrent requests result in a single mint", func(t *testing.T) {
		tokenHandler := &idptest.TokenHandler{}
		srv := newTenantIDPServer(t, tokenHandler)
		broker := newTestBroker(srv, obotoken.BrokerOpts{})

		assertion := testUserAssertion(t)
		const goroutines = 16
		tokens := make([]string, goroutines)
		errs := make([]error, goroutines)
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func(i int) {
				defer wg.Done()
				tokens[i], errs[i] = broker.GetDelegatedToken(
					context.Background(), testTenantID, testResource, assertion)
			}(i)
		}
		wg.Wait()

		for i := 0; i < goroutines; i++ {
			require.NoError(t, errs[i])
			require.Equal(t, tokens[0], tokens[i])
		}
		require.EqualValues(t, 1, tokenHandler.ServedCount())
	})

	t.Run("token endpoint error is surfaced", func(t *testing.T) {
		failingHandler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusUnauthorized)
			_, _ = rw.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
		})
		srv := newTenantIDPServer(t, failingHandler)
		broker := newTestBroker(srv, obotoken.BrokerOpts{})

		_, err := broker.GetDelegatedToken(context.Background(), testTenantID, testResource, testUserAssertion(t))
		var idpErr *obotoken.UnexpectedIDPResponseError
		require.ErrorAs(t, err, &idpErr)
		require.Equal(t, http.StatusUnauthorized, idpErr.HTTPCode)
		require.Equal(t, "invalid_client", idpErr.ErrorCode)
	})

	t.Run("invalidate tenant drops cached tokens", func(t *testing.T) {
		tokenHandler := &idptest.TokenHandler{}
		srv := newTenantIDPServer(t, tokenHandler)
		broker := newTestBroker(srv, obotoken.BrokerOpts{})

		_, err := broker.GetDelegatedToken(context.Background(), testTenantID, testResource, testUserAssertion(t))
		require.NoError(t, err)
		broker.InvalidateTenant(testTenantID)

		_, err = broker.GetDelegatedToken(context.Background(), testTenantID, testResource, testUserAssertion(t))
		require.NoError(t, err)
		require.EqualValues(t, 2, tokenHandler.ServedCount())
	})
}

func TestCachedTokenIsFresh(t *testing.T) {
	now := time.Now()
	buffer := 5 * time.Minute

	fresh := obotoken.CachedToken{AccessToken: "t", ExpiresAt: now.Add(buffer + time.Second)}
	require.True(t, fresh.IsFresh(now, buffer))

	// The boundary instant counts as expired.
	boundary := obotoken.CachedToken{AccessToken: "t", ExpiresAt: now.Add(buffer)}
	require.False(t, boundary.IsFresh(now, buffer))

	stale := obotoken.CachedToken{AccessToken: "t", ExpiresAt: now.Add(buffer - time.Second)}
	require.False(t, stale.IsFresh(now, buffer))
}

func newTestBroker(srv *httptest.Server, opts obotoken.BrokerOpts) *obotoken.Broker {
	opts.BaseAuthorityURL = srv.URL
	opts.HTTPClient = srv.Client()
	return obotoken.NewBroker("test-client-id",
		func(ctx context.Context) (string, error) { return "test-client-secret", nil }, opts)
}
