/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package sentriage

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies authentication and credential brokering failures.
// Every error returned by Authenticator carries exactly one kind, so callers
// can branch on it without inspecting error messages.
type ErrorKind string

const (
	// ErrorKindMissingToken means the request carried no bearer token at all.
	ErrorKindMissingToken ErrorKind = "missing_token"

	// ErrorKindMalformedToken means the token could not be decoded as a JWT.
	ErrorKindMalformedToken ErrorKind = "malformed_token"

	// ErrorKindUnknownTenant means the token was issued by a tenant this service does not serve.
	ErrorKindUnknownTenant ErrorKind = "unknown_tenant"

	// ErrorKindSignatureInvalid means the token signature did not verify against the tenant's keys.
	ErrorKindSignatureInvalid ErrorKind = "signature_invalid"

	// ErrorKindTokenExpired means the token's expiration time has passed.
	ErrorKindTokenExpired ErrorKind = "token_expired"

	// ErrorKindAudienceMismatch means the token was issued for a different audience.
	ErrorKindAudienceMismatch ErrorKind = "audience_mismatch"

	// ErrorKindScopeInsufficient means the token lacks every one of the required scopes.
	ErrorKindScopeInsufficient ErrorKind = "scope_insufficient"

	// ErrorKindCredentialMintFailure means a delegated token could not be obtained.
	ErrorKindCredentialMintFailure ErrorKind = "credential_mint_failure"

	// ErrorKindUpstreamTimeout means the identity provider did not answer in time.
	ErrorKindUpstreamTimeout ErrorKind = "upstream_timeout"

	// ErrorKindConfiguration means the service itself is misconfigured. It is fatal:
	// requests cannot be served correctly until the configuration is fixed.
	ErrorKindConfiguration ErrorKind = "configuration"
)

// HTTPStatus maps the error kind to the HTTP status code of the outward response.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrorKindMissingToken, ErrorKindMalformedToken, ErrorKindUnknownTenant,
		ErrorKindSignatureInvalid, ErrorKindTokenExpired, ErrorKindAudienceMismatch,
		ErrorKindScopeInsufficient:
		return http.StatusUnauthorized
	case ErrorKindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrorKindCredentialMintFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is an authentication error with a kind and an outward-safe message.
// The underlying cause is preserved for logs but never serialized to clients.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// NewError creates an Error of the given kind. Cause may be nil.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// GetErrorKind extracts the kind from an error returned by this package.
func GetErrorKind(err error) (ErrorKind, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind, true
	}
	return "", false
}

// IsErrorKind reports whether the error carries the given kind.
func IsErrorKind(err error, kind ErrorKind) bool {
	k, ok := GetErrorKind(err)
	return ok && k == kind
}
