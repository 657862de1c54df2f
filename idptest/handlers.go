/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package idptest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	jwtgo "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/secopshub/sentriage/internal/jwk"
	"github.com/secopshub/sentriage/jwt"
)

// ErrUnauthorized may be returned by claims providers to make a handler respond with 401.
var ErrUnauthorized = errors.New("unauthorized")

// JWKSHandler is an HTTP handler that responds with a JWKS.
type JWKSHandler struct {
	servedCount atomic.Uint64
	PublicJWKS  []jwk.Key
}

func (h *JWKSHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(rw, "Only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}

	h.servedCount.Add(1)

	publicJWKS := h.PublicJWKS
	if len(publicJWKS) == 0 {
		publicJWKS = GetTestPublicJWKS()
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(PublicJWKSResponse{Keys: publicJWKS}); err != nil {
		http.Error(rw, fmt.Sprintf("Error encoding response: %v", err), http.StatusInternalServerError)
		return
	}
}

// ServedCount returns the number of times the JWKS handler has been served.
func (h *JWKSHandler) ServedCount() uint64 {
	return h.servedCount.Load()
}

// PublicJWKSResponse is a response for the GET /idp/keys endpoint.
type PublicJWKSResponse struct {
	Keys []jwk.Key `json:"keys"`
}

// OpenIDConfigurationHandler is an HTTP handler that responds with the authority's OpenID configuration.
type OpenIDConfigurationHandler struct {
	servedCount      atomic.Uint64
	Issuer           string
	JWKSURL          string
	TokenEndpointURL string
}

func (h *OpenIDConfigurationHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(rw, "Only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}

	h.servedCount.Add(1)

	openIDCfg := OpenIDConfigurationResponse{
		Issuer:        h.Issuer,
		TokenEndpoint: h.TokenEndpointURL,
		JWKSURI:       h.JWKSURL,
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(openIDCfg); err != nil {
		http.Error(rw, fmt.Sprintf("Error encoding response: %v", err), http.StatusInternalServerError)
		return
	}
}

// ServedCount returns the number of times the handler has been served.
func (h *OpenIDConfigurationHandler) ServedCount() uint64 {
	return h.servedCount.Load()
}

// OpenIDConfigurationResponse is a response for the .well-known/openid-configuration endpoint.
type OpenIDConfigurationResponse struct {
	Issuer        string `json:"issuer"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

// HTTPClaimsProvider is an interface for providing JWT claims for a token exchange request via HTTP.
type HTTPClaimsProvider interface {
	Provide(r *http.Request) (*jwt.Claims, error)
}

// HTTPClaimsProviderFunc is a function that implements HTTPClaimsProvider interface.
type HTTPClaimsProviderFunc func(r *http.Request) (*jwt.Claims, error)

// Provide implements HTTPClaimsProvider interface.
func (f HTTPClaimsProviderFunc) Provide(r *http.Request) (*jwt.Claims, error) {
	return f(r)
}

// TokenHandler is a handler for the POST /idp/token endpoint.
// It implements the on-behalf-of flavor of the jwt-bearer grant:
// the request must carry a user assertion, and the issued token is signed with the test key.
type TokenHandler struct {
	servedCount    atomic.Uint64
	Issuer         string
	ClaimsProvider HTTPClaimsProvider
}

func (h *TokenHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	h.servedCount.Add(1)

	if grantType := r.FormValue("grant_type"); grantType != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		http.Error(rw, fmt.Sprintf("Unsupported grant_type %q", grantType), http.StatusBadRequest)
		return
	}
	if r.FormValue("assertion") == "" {
		http.Error(rw, "Assertion is required", http.StatusBadRequest)
		return
	}

	var claims *jwt.Claims
	if h.ClaimsProvider != nil {
		var err error
		if claims, err = h.ClaimsProvider.Provide(r); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				http.Error(rw, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Error(rw, fmt.Sprintf("Claims provider failed to provide claims: %v", err), http.StatusInternalServerError)
			return
		}
	} else {
		claims = &jwt.Claims{Scope: r.FormValue("scope")}
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwtgo.NewNumericDate(time.Now().Add(time.Hour)) // By default, token expires in 1 hour.
	}
	if claims.Issuer == "" {
		claims.Issuer = h.Issuer
	}

	token, err := MakeTokenStringSignedWithTestKey(claims)
	if err != nil {
		http.Error(rw, fmt.Sprintf("Failed to generate token: %v", err), http.StatusInternalServerError)
		return
	}

	expiresIn := claims.ExpiresAt.Unix() - time.Now().UTC().Unix()
	if expiresIn < 0 {
		expiresIn = 0
	}

	response := TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}
	rw.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(rw).Encode(response); err != nil {
		http.Error(rw, fmt.Sprintf("Error encoding response: %v", err), http.StatusInternalServerError)
		return
	}
}

// ServedCount returns the number of times the handler has been served.
func (h *TokenHandler) ServedCount() uint64 {
	return h.servedCount.Load()
}

// ResetServedCount resets the number of times the handler has been served.
func (h *TokenHandler) ResetServedCount() {
	h.servedCount.Store(0)
}

// TokenResponse is a response for the POST /idp/token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
