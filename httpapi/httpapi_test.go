/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/secopshub/sentriage"
	"github.com/secopshub/sentriage/httpapi"
	"github.com/secopshub/sentriage/sentinel"
	"github.com/secopshub/sentriage/tenantstore"
)

const (
	testBearerToken    = "valid-bearer-token"
	testDelegatedToken = "delegated-token"
)

type stubGateway struct {
	identity          *sentriage.UserIdentity
	authErr           error
	delegatedErr      error
	delegatedResource string
}

func (g *stubGateway) Authenticate(_ context.Context, token string) (*sentriage.UserIdentity, error) {
	if g.authErr != nil {
		return nil, g.authErr
	}
	if token != testBearerToken {
		return nil, sentriage.NewError(sentriage.ErrorKindMissingToken, "authorization bearer token is missing", nil)
	}
	return g.identity, nil
}

func (g *stubGateway) DelegatedToken(_ context.Context, _ *sentriage.UserIdentity, resource string) (string, error) {
	if g.delegatedErr != nil {
		return "", g.delegatedErr
	}
	g.delegatedResource = resource
	return testDelegatedToken, nil
}

type recordingReader struct {
	lastToken string
	reader    *sentinel.Client
}

func newRecordingReader() *recordingReader {
	return &recordingReader{reader: sentinel.NewClientWithOpts(sentinel.ClientOpts{
		Generator: sentinel.NewGeneratorWithSeed(7),
	})}
}

func (r *recordingReader) ListIncidents(ctx context.Context, token string, limit int, filter sentinel.Filter) ([]sentinel.Incident, error) {
	r.lastToken = token
	return r.reader.ListIncidents(ctx, token, limit, filter)
}

func (r *recordingReader) GetIncident(ctx context.Context, token, incidentID string) (sentinel.IncidentDetail, error) {
	r.lastToken = token
	return r.reader.GetIncident(ctx, token, incidentID)
}

func (r *recordingReader) MetricsDashboard(ctx context.Context, token string) (sentinel.Dashboard, error) {
	r.lastToken = token
	return r.reader.MetricsDashboard(ctx, token)
}

func newTestHandler(t *testing.T, gateway *stubGateway) (http.Handler, *recordingReader) {
	t.Helper()
	store, err := tenantstore.NewStore(t.TempDir(), tenantstore.StoreOpts{})
	require.NoError(t, err)
	reader := newRecordingReader()
	return httpapi.NewHandler(gateway, reader, store, httpapi.HandlerOpts{}).Routes(), reader
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func testIdentity() *sentriage.UserIdentity {
	return &sentriage.UserIdentity{
		ID:       "b24dfcf1-2c05-4cb5-b44c-09e7e2315d9d",
		Name:     "Dana Analyst",
		TenantID: "72f988bf-86f1-41af-91ab-2d7cd011db47",
		Scopes:   []string{"access_as_user"},
	}
}

func TestHandleHealth(t *testing.T) {
	handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
	resp := doRequest(t, handler, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	data := body["data"].(map[string]interface{})
	require.Equal(t, "healthy", data["status"])
}

func TestHandleAuthenticate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
		resp := doRequest(t, handler, http.MethodPost, "/authenticate", testBearerToken, nil)

		require.Equal(t, http.StatusOK, resp.Code)
		data := decodeBody(t, resp)["data"].(map[string]interface{})
		require.Equal(t, "Token validated successfully", data["message"])
		userInfo := data["user_info"].(map[string]interface{})
		require.Equal(t, "b24dfcf1-2c05-4cb5-b44c-09e7e2315d9d", userInfo["id"])
	})

	t.Run("missing token", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
		resp := doRequest(t, handler, http.MethodPost, "/authenticate", "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
		require.Equal(t, "authorization bearer token is missing", decodeBody(t, resp)["error"])
	})
}

func TestHandleListIncidents(t *testing.T) {
	t.Run("ok with delegated credential", func(t *testing.T) {
		gateway := &stubGateway{identity: testIdentity()}
		handler, reader := newTestHandler(t, gateway)
		resp := doRequest(t, handler, http.MethodPost, "/incidents/list", testBearerToken,
			map[string]interface{}{"limit": 3, "filter": map[string]string{"severity": "High"}})

		require.Equal(t, http.StatusOK, resp.Code)
		data := decodeBody(t, resp)["data"].(map[string]interface{})
		require.EqualValues(t, 3, data["count"])
		require.Equal(t, sentinel.Resource, gateway.delegatedResource)
		require.Equal(t, testDelegatedToken, reader.lastToken)
		for _, item := range data["incidents"].([]interface{}) {
			require.Equal(t, "High", item.(map[string]interface{})["severity"])
		}
	})

	t.Run("empty body uses defaults", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
		resp := doRequest(t, handler, http.MethodPost, "/incidents/list", testBearerToken, nil)

		require.Equal(t, http.StatusOK, resp.Code)
		data := decodeBody(t, resp)["data"].(map[string]interface{})
		require.EqualValues(t, sentinel.DefaultIncidentLimit, data["count"])
	})

	t.Run("bad date filter", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
		resp := doRequest(t, handler, http.MethodPost, "/incidents/list", testBearerToken,
			map[string]interface{}{"filter": map[string]string{"date_from": "yesterday"}})

		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("rejected before any data access", func(t *testing.T) {
		handler, reader := newTestHandler(t, &stubGateway{identity: testIdentity()})
		resp := doRequest(t, handler, http.MethodPost, "/incidents/list", "", nil)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
		require.Empty(t, reader.lastToken)
	})

	t.Run("delegation failure maps to bad gateway", func(t *testing.T) {
		gateway := &stubGateway{
			identity: testIdentity(),
			delegatedErr: sentriage.NewError(sentriage.ErrorKindCredentialMintFailure,
				"delegated token could not be obtained", nil),
		}
		handler, _ := newTestHandler(t, gateway)
		resp := doRequest(t, handler, http.MethodPost, "/incidents/list", testBearerToken, nil)

		require.Equal(t, http.StatusBadGateway, resp.Code)
		require.Equal(t, "delegated token could not be obtained", decodeBody(t, resp)["error"])
	})
}

func TestHandleGetIncident(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
		resp := doRequest(t, handler, http.MethodPost, "/incidents/get", testBearerToken,
			map[string]string{"id": "incident-42"})

		require.Equal(t, http.StatusOK, resp.Code)
		data := decodeBody(t, resp)["data"].(map[string]interface{})
		require.Equal(t, "incident-42", data["id"])
	})

	t.Run("missing id", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
		resp := doRequest(t, handler, http.MethodPost, "/incidents/get", testBearerToken, nil)

		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Equal(t, "Incident ID is required", decodeBody(t, resp)["error"])
	})
}

func TestHandleMetricsDashboard(t *testing.T) {
	handler, reader := newTestHandler(t, &stubGateway{identity: testIdentity()})
	resp := doRequest(t, handler, http.MethodPost, "/metrics/dashboard", testBearerToken, nil)

	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeBody(t, resp)["data"].(map[string]interface{})
	require.Contains(t, data, "summary")
	require.Contains(t, data, "severityDistribution")
	require.Equal(t, testDelegatedToken, reader.lastToken)
}

func TestHandleListTenants(t *testing.T) {
	handler, _ := newTestHandler(t, &stubGateway{identity: testIdentity()})
	resp := doRequest(t, handler, http.MethodGet, "/tenants", testBearerToken, nil)

	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeBody(t, resp)["data"].(map[string]interface{})
	require.NotEmpty(t, data["tenants"])
	require.EqualValues(t, len(data["tenants"].([]interface{})), data["count"])
}
