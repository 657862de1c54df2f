/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package sentriage

import (
	"context"
	"net/http"
	"strings"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"

	"github.com/secopshub/sentriage/internal/authutil"
	"github.com/secopshub/sentriage/internal/metrics"
)

// HeaderAuthorization contains the name of HTTP header with data that is used for authentication and authorization.
const HeaderAuthorization = "Authorization"

// Authentication and authorization error codes.
// We are using "var" here because some services may want to use different error codes.
var (
	ErrCodeBearerTokenMissing   = "bearerTokenMissing"
	ErrCodeAuthenticationFailed = "authenticationFailed"
	ErrCodeAuthorizationFailed  = "authorizationFailed"
)

// Authentication error messages.
// We are using "var" here because some services may want to use different error messages.
var (
	ErrMessageBearerTokenMissing   = "Authorization bearer token is missing."
	ErrMessageAuthenticationFailed = "Authentication is failed."
	ErrMessageAuthorizationFailed  = "Authorization is failed."
)

type ctxKey int

const (
	ctxKeyUserIdentity ctxKey = iota
	ctxKeyBearerToken
)

type authHandler struct {
	next           http.Handler
	errorDomain    string
	authenticator  *Authenticator
	verifyAccess   func(r *http.Request, identity *UserIdentity) bool
	loggerProvider func(ctx context.Context) log.FieldLogger
	promMetrics    *metrics.PrometheusMetrics
}

type authMiddlewareOpts struct {
	verifyAccess               func(r *http.Request, identity *UserIdentity) bool
	loggerProvider             func(ctx context.Context) log.FieldLogger
	prometheusLibInstanceLabel string
}

// AuthMiddlewareOption is an option for AuthMiddleware.
type AuthMiddlewareOption func(options *authMiddlewareOpts)

// WithAuthMiddlewareVerifyAccess is an option to set a function that verifies access for AuthMiddleware.
// It runs after the token has been validated and scope-checked.
func WithAuthMiddlewareVerifyAccess(verifyAccess func(r *http.Request, identity *UserIdentity) bool) AuthMiddlewareOption {
	return func(options *authMiddlewareOpts) {
		options.verifyAccess = verifyAccess
	}
}

// WithAuthMiddlewareLoggerProvider is an option to set a logger provider for AuthMiddleware.
func WithAuthMiddlewareLoggerProvider(loggerProvider func(ctx context.Context) log.FieldLogger) AuthMiddlewareOption {
	return func(options *authMiddlewareOpts) {
		options.loggerProvider = loggerProvider
	}
}

// WithAuthMiddlewarePrometheusLibInstanceLabel is an option to set a label for Prometheus metrics
// that are used by AuthMiddleware.
func WithAuthMiddlewarePrometheusLibInstanceLabel(label string) AuthMiddlewareOption {
	return func(options *authMiddlewareOpts) {
		options.prometheusLibInstanceLabel = label
	}
}

// AuthMiddleware is a middleware that authenticates requests by the bearer token
// from the "Authorization" HTTP header.
// errorDomain is used for error responses. It is usually the name of the service that uses the middleware,
// and its goal is distinguishing errors from different services.
// For example, if the "Authorization" HTTP header is missing, the middleware will return 401 with the following response body:
//
//	{"error": {"domain": "MyService", "code": "bearerTokenMissing", "message": "Authorization bearer token is missing."}}
func AuthMiddleware(errorDomain string, authenticator *Authenticator, opts ...AuthMiddlewareOption) func(next http.Handler) http.Handler {
	options := authMiddlewareOpts{loggerProvider: middleware.GetLoggerFromContext}
	for _, opt := range opts {
		opt(&options)
	}
	return func(next http.Handler) http.Handler {
		return &authHandler{
			next:           next,
			errorDomain:    errorDomain,
			authenticator:  authenticator,
			verifyAccess:   options.verifyAccess,
			loggerProvider: options.loggerProvider,
			promMetrics:    metrics.GetPrometheusMetrics(options.prometheusLibInstanceLabel, metrics.SourceHTTPMiddleware),
		}
	}
}

func (h *authHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := authutil.GetLoggerFromProvider(r.Context(), h.loggerProvider)

	bearerToken := GetBearerTokenFromRequest(r)
	if bearerToken == "" {
		h.promMetrics.IncTokenValidationsTotal("missing")
		apiErr := restapi.NewError(h.errorDomain, ErrCodeBearerTokenMissing, ErrMessageBearerTokenMissing)
		restapi.RespondError(rw, http.StatusUnauthorized, apiErr, logger)
		return
	}
	// Add the bearer token to the request context
	r = r.WithContext(NewContextWithBearerToken(r.Context(), bearerToken))

	identity, err := h.authenticator.Authenticate(r.Context(), bearerToken)
	if err != nil {
		kind, _ := GetErrorKind(err)
		logger.Error("authentication failed", log.String("error_kind", string(kind)), log.Error(err))
		code, message := ErrCodeAuthenticationFailed, ErrMessageAuthenticationFailed
		if kind == ErrorKindScopeInsufficient {
			code, message = ErrCodeAuthorizationFailed, ErrMessageAuthorizationFailed
		}
		apiErr := restapi.NewError(h.errorDomain, code, message)
		restapi.RespondError(rw, kind.HTTPStatus(), apiErr, logger)
		return
	}
	// Add the authenticated identity to the request context
	r = r.WithContext(NewContextWithUserIdentity(r.Context(), identity))

	if h.verifyAccess != nil {
		// By passing a *http.Request to verifyAccess, we allow its implementations
		// to inject new key/value pairs into the request context.
		if !h.verifyAccess(r, identity) {
			apiErr := restapi.NewError(h.errorDomain, ErrCodeAuthorizationFailed, ErrMessageAuthorizationFailed)
			restapi.RespondError(rw, http.StatusForbidden, apiErr, logger)
			return
		}
	}

	h.next.ServeHTTP(rw, r)
}

// GetBearerTokenFromRequest extracts the bearer token from request headers.
func GetBearerTokenFromRequest(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get(HeaderAuthorization))
	if strings.HasPrefix(authHeader, "Bearer ") || strings.HasPrefix(authHeader, "bearer ") {
		return authHeader[7:]
	}
	return ""
}

// NewContextWithUserIdentity creates a new context with the authenticated identity.
func NewContextWithUserIdentity(ctx context.Context, identity *UserIdentity) context.Context {
	return context.WithValue(ctx, ctxKeyUserIdentity, identity)
}

// GetUserIdentityFromContext extracts the authenticated identity from the context.
func GetUserIdentityFromContext(ctx context.Context) *UserIdentity {
	value := ctx.Value(ctxKeyUserIdentity)
	if value == nil {
		return nil
	}
	return value.(*UserIdentity)
}

// NewContextWithBearerToken creates a new context with token.
func NewContextWithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyBearerToken, token)
}

// GetBearerTokenFromContext extracts token from the context.
func GetBearerTokenFromContext(ctx context.Context) string {
	value := ctx.Value(ctxKeyBearerToken)
	if value == nil {
		return ""
	}
	return value.(string)
}
