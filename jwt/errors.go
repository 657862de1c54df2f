/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package jwt

import (
	"fmt"
)

// SignAlgUnknownError represents an error when JWT signing algorithm is unknown.
type SignAlgUnknownError struct {
	Alg string
}

func (e *SignAlgUnknownError) Error() string {
	return fmt.Sprintf("JWT has unknown signing algorithm %q", e.Alg)
}

// AudienceMissingError represents an error when JWT audience is missing, but it's required.
type AudienceMissingError struct {
	Claims *Claims
}

func (e *AudienceMissingError) Error() string {
	return "JWT audience missing"
}

// AudienceNotExpectedError represents an error when JWT contains an unexpected audience.
type AudienceNotExpectedError struct {
	Claims   *Claims
	Audience []string
}

func (e *AudienceNotExpectedError) Error() string {
	return fmt.Sprintf("JWT audience %q not expected", e.Audience)
}
