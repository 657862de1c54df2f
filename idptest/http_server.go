/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package idptest provides a mock identity provider HTTP server for tests:
// OpenID discovery, JWKS serving and jwt-bearer token exchange.
package idptest

import (
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/acronis/go-appkit/testutil"

	"github.com/secopshub/sentriage/internal/jwk"
)

const (
	OpenIDConfigurationPath = "/.well-known/openid-configuration"
	JWKSEndpointPath        = "/idp/keys"
	TokenEndpointPath       = "/idp/token"
)

const localhostWithDynamicPortAddr = "127.0.0.1:0"

// HTTPServerOption is an option for HTTPServer.
type HTTPServerOption func(s *HTTPServer)

// WithHTTPAddress is an option to set HTTP server address.
func WithHTTPAddress(addr string) HTTPServerOption {
	return func(s *HTTPServer) {
		s.addr.Store(addr)
	}
}

// WithHTTPKeysHandler is an option to set a custom handler for GET /idp/keys.
// Otherwise, JWKSHandler will be used.
func WithHTTPKeysHandler(handler http.Handler) HTTPServerOption {
	return func(s *HTTPServer) {
		s.KeysHandler = handler
	}
}

// WithHTTPPublicJWKS is an option to set the public JWKS served by GET /idp/keys.
func WithHTTPPublicJWKS(keys []jwk.Key) HTTPServerOption {
	return func(s *HTTPServer) {
		s.KeysHandler = &JWKSHandler{PublicJWKS: keys}
	}
}

// WithHTTPTokenHandler is an option to set a custom handler for POST /idp/token.
func WithHTTPTokenHandler(handler http.Handler) HTTPServerOption {
	return func(s *HTTPServer) {
		s.TokenHandler = handler
	}
}

// WithHTTPClaimsProvider is an option to set ClaimsProvider for TokenHandler
// which will be used for POST /idp/token.
func WithHTTPClaimsProvider(claimsProvider HTTPClaimsProvider) HTTPServerOption {
	return func(s *HTTPServer) {
		h := &TokenHandler{ClaimsProvider: claimsProvider}
		s.TokenHandler = h
		s.afterListenCallbacks = append(s.afterListenCallbacks, func() {
			h.Issuer = s.URL()
		})
	}
}

// HTTPServer is a mock IDP server for testing purposes.
// Its base URL acts as the tenant authority: discovery, JWKS and token exchange
// endpoints are all served relative to it.
type HTTPServer struct {
	*http.Server
	addr                       atomic.Value
	KeysHandler                http.Handler
	TokenHandler               http.Handler
	OpenIDConfigurationHandler http.Handler
	Router                     *http.ServeMux
	afterListenCallbacks       []func()
}

// NewHTTPServer creates a new mock IDP server with provided options.
func NewHTTPServer(options ...HTTPServerOption) *HTTPServer {
	s := &HTTPServer{}
	for _, opt := range options {
		opt(s)
	}

	if s.TokenHandler == nil {
		tokenHandler := &TokenHandler{}
		s.TokenHandler = tokenHandler
		s.afterListenCallbacks = append(s.afterListenCallbacks, func() {
			tokenHandler.Issuer = s.URL()
		})
	}

	if s.KeysHandler == nil {
		s.KeysHandler = &JWKSHandler{}
	}

	openIDCfgHandler := &OpenIDConfigurationHandler{}
	s.OpenIDConfigurationHandler = openIDCfgHandler
	s.afterListenCallbacks = append(s.afterListenCallbacks, func() {
		openIDCfgHandler.Issuer = s.URL()
		openIDCfgHandler.JWKSURL = s.URL() + JWKSEndpointPath
		openIDCfgHandler.TokenEndpointURL = s.URL() + TokenEndpointPath
	})

	s.Router = http.NewServeMux()
	s.Router.Handle(OpenIDConfigurationPath, s.OpenIDConfigurationHandler)
	s.Router.Handle(JWKSEndpointPath, s.KeysHandler)
	s.Router.Handle(TokenEndpointPath, s.TokenHandler)

	// nolint:gosec // This server is used for testing purposes only.
	s.Server = &http.Server{Handler: s.Router}

	return s
}

// URL method returns the URL of the server.
func (s *HTTPServer) URL() string {
	if srvURL := s.addr.Load(); srvURL != nil {
		return "http://" + srvURL.(string)
	}
	return ""
}

// Start starts the HTTPServer.
func (s *HTTPServer) Start() error {
	addr, ok := s.addr.Load().(string)
	if !ok {
		addr = localhostWithDynamicPortAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}
	s.addr.Store(ln.Addr().String())

	for _, cb := range s.afterListenCallbacks {
		cb()
	}

	go func() { _ = s.Server.Serve(ln) }()

	return nil
}

// StartAndWaitForReady starts the server and waits for the server to start listening.
func (s *HTTPServer) StartAndWaitForReady(timeout time.Duration) error {
	if err := s.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	return testutil.WaitListeningServer(s.addr.Load().(string), timeout)
}
