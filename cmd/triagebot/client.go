/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
)

// tokenFunc obtains a fresh bearer token for the triage API.
type tokenFunc func(ctx context.Context) (string, error)

// commandTokenSource runs an external command (typically the cloud CLI) and
// uses its trimmed stdout as the bearer token.
func commandTokenSource(command string) tokenFunc {
	return func(ctx context.Context) (string, error) {
		out, err := exec.CommandContext(ctx, "sh", "-c", command).Output()
		if err != nil {
			return "", fmt.Errorf("run token command: %w", err)
		}
		token := strings.TrimSpace(string(out))
		if token == "" {
			return "", fmt.Errorf("token command produced no output")
		}
		return token, nil
	}
}

// apiClient calls the triage server. When a request comes back 401 it
// refreshes the token and retries exactly once.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	getToken   tokenFunc
	token      string
}

func newAPIClient(baseURL string, httpClient *http.Client, getToken tokenFunc) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient, getToken: getToken}
}

// Login fetches a token eagerly and validates it against the server.
func (c *apiClient) Login(ctx context.Context) (map[string]interface{}, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}
	c.token = token
	return c.call(ctx, http.MethodPost, "/authenticate", nil)
}

func (c *apiClient) ListIncidents(ctx context.Context, limit int, severity, status string) (map[string]interface{}, error) {
	filter := map[string]string{}
	if severity != "" {
		filter["severity"] = severity
	}
	if status != "" {
		filter["status"] = status
	}
	return c.call(ctx, http.MethodPost, "/incidents/list",
		map[string]interface{}{"limit": limit, "filter": filter})
}

func (c *apiClient) GetIncident(ctx context.Context, incidentID string) (map[string]interface{}, error) {
	return c.call(ctx, http.MethodPost, "/incidents/get", map[string]string{"id": incidentID})
}

func (c *apiClient) MetricsDashboard(ctx context.Context) (map[string]interface{}, error) {
	return c.call(ctx, http.MethodPost, "/metrics/dashboard", nil)
}

func (c *apiClient) call(ctx context.Context, method, endpoint string, body interface{}) (map[string]interface{}, error) {
	if c.token == "" {
		token, err := c.getToken(ctx)
		if err != nil {
			return nil, err
		}
		c.token = token
	}

	resp, err := c.doRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		// Token likely expired; refresh and retry once.
		token, tokenErr := c.getToken(ctx)
		if tokenErr != nil {
			return nil, fmt.Errorf("refresh token: %w", tokenErr)
		}
		c.token = token
		if resp, err = c.doRequest(ctx, method, endpoint, body); err != nil {
			return nil, err
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	var envelope struct {
		Data  map[string]interface{} `json:"data"`
		Error string                 `json:"error"`
	}
	if err = json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if envelope.Error != "" {
			return nil, fmt.Errorf("server error (HTTP %d): %s", resp.StatusCode, envelope.Error)
		}
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	return envelope.Data, nil
}

func (c *apiClient) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	return resp, nil
}

// chatCompletion forwards a free-text line to the configured chat endpoint.
// Without an endpoint it answers locally so the loop stays usable offline.
func chatCompletion(ctx context.Context, httpClient *http.Client, endpoint, query string) (string, error) {
	if endpoint == "" {
		return fmt.Sprintf("Processed query: %s\nTry: incidents, incident <id>, metrics", query), nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call chat endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat endpoint returned HTTP %d", resp.StatusCode)
	}
	var chatResp struct {
		Response string `json:"response"`
	}
	if err = json.Unmarshal(respBody, &chatResp); err != nil || chatResp.Response == "" {
		return string(respBody), nil
	}
	return chatResp.Response, nil
}
