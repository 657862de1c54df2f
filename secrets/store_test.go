/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package secrets_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/secopshub/sentriage/secrets"
)

type countingProvider struct {
	calls  atomic.Int64
	values map[string]string
}

func (p *countingProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.calls.Add(1)
	value, ok := p.values[name]
	if !ok {
		return "", &secrets.NotFoundError{Name: name}
	}
	return value, nil
}

func TestStoreGetSecret(t *testing.T) {
	t.Run("caches fetched values without expiry", func(t *testing.T) {
		provider := &countingProvider{values: map[string]string{"client-secret": "s3cr3t"}}
		store := secrets.NewStore(provider, nil)

		for i := 0; i < 5; i++ {
			value, err := store.GetSecret(context.Background(), "client-secret")
			require.NoError(t, err)
			require.Equal(t, "s3cr3t", value)
		}
		require.EqualValues(t, 1, provider.calls.Load())
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		provider := &countingProvider{values: map[string]string{"client-secret": "v1"}}
		store := secrets.NewStore(provider, nil)

		value, err := store.GetSecret(context.Background(), "client-secret")
		require.NoError(t, err)
		require.Equal(t, "v1", value)

		provider.values["client-secret"] = "v2"
		store.Invalidate("client-secret")

		value, err = store.GetSecret(context.Background(), "client-secret")
		require.NoError(t, err)
		require.Equal(t, "v2", value)
		require.EqualValues(t, 2, provider.calls.Load())
	})

	t.Run("falls back to environment when primary fails", func(t *testing.T) {
		t.Setenv("WORKSPACE_KEY", "env-value")
		provider := &countingProvider{values: map[string]string{}}
		store := secrets.NewStore(provider, &secrets.EnvProvider{})

		value, err := store.GetSecret(context.Background(), "workspace-key")
		require.NoError(t, err)
		require.Equal(t, "env-value", value)
	})

	t.Run("missing everywhere yields NotFoundError", func(t *testing.T) {
		store := secrets.NewStore(&countingProvider{values: map[string]string{}}, &secrets.EnvProvider{})
		_, err := store.GetSecret(context.Background(), "nonexistent-secret")
		var notFoundErr *secrets.NotFoundError
		require.ErrorAs(t, err, &notFoundErr)
	})

	t.Run("nil primary uses fallback only", func(t *testing.T) {
		t.Setenv("API_TOKEN", "from-env")
		store := secrets.NewStore(nil, &secrets.EnvProvider{})
		value, err := store.GetSecret(context.Background(), "api-token")
		require.NoError(t, err)
		require.Equal(t, "from-env", value)
	})

	t.Run("concurrent first access results in a single fetch", func(t *testing.T) {
		provider := &countingProvider{values: map[string]string{"client-secret": "s3cr3t"}}
		store := secrets.NewStore(provider, nil)

		const goroutines = 16
		errs := make([]error, goroutines)
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func(i int) {
				defer wg.Done()
				_, errs[i] = store.GetSecret(context.Background(), "client-secret")
			}(i)
		}
		wg.Wait()
		for i := 0; i < goroutines; i++ {
			require.NoError(t, errs[i])
		}
		require.EqualValues(t, 1, provider.calls.Load())
	})
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("SENTRIAGE_CLIENT_SECRET", "prefixed-value")
	provider := &secrets.EnvProvider{Prefix: "SENTRIAGE_"}

	value, err := provider.GetSecret(context.Background(), "client-secret")
	require.NoError(t, err)
	require.Equal(t, "prefixed-value", value)

	_, err = provider.GetSecret(context.Background(), "missing-secret")
	var notFoundErr *secrets.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestVaultClient(t *testing.T) {
	t.Run("fetches secret value", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/secrets/client-secret", r.URL.Path)
			require.Equal(t, "Bearer vault-token", r.Header.Get("Authorization"))
			rw.Header().Set("Content-Type", "application/json")
			_, _ = rw.Write([]byte(`{"value":"vault-value","attributes":{"enabled":true}}`))
		}))
		defer srv.Close()

		client := secrets.NewVaultClient(srv.URL, secrets.VaultClientOpts{
			HTTPClient:  srv.Client(),
			TokenSource: func(ctx context.Context) (string, error) { return "vault-token", nil },
		})
		value, err := client.GetSecret(context.Background(), "client-secret")
		require.NoError(t, err)
		require.Equal(t, "vault-value", value)
	})

	t.Run("404 maps to NotFoundError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			http.Error(rw, "not found", http.StatusNotFound)
		}))
		defer srv.Close()

		client := secrets.NewVaultClient(srv.URL, secrets.VaultClientOpts{HTTPClient: srv.Client()})
		_, err := client.GetSecret(context.Background(), "unknown")
		var notFoundErr *secrets.NotFoundError
		require.ErrorAs(t, err, &notFoundErr)
	})

	t.Run("token source failure aborts the request", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			t.Error("request must not be sent")
		}))
		defer srv.Close()

		client := secrets.NewVaultClient(srv.URL, secrets.VaultClientOpts{
			HTTPClient:  srv.Client(),
			TokenSource: func(ctx context.Context) (string, error) { return "", errors.New("no identity") },
		})
		_, err := client.GetSecret(context.Background(), "client-secret")
		require.ErrorContains(t, err, "get vault access token")
	})
}
