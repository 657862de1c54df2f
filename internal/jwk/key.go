/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package jwk provides a minimal JSON Web Key structure with RSA public key
// encoding and decoding, enough for verifying identity provider signatures.
package jwk

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

const typeRSA = "RSA"

// Key defines the JSON Web Key structure for signature verification keys.
type Key struct {
	Alg string `json:"alg,omitempty"`
	E   string `json:"e"`
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	Use string `json:"use,omitempty"`
}

// DecodePublicKey decodes Key to an RSA public key.
func (k *Key) DecodePublicKey() (crypto.PublicKey, error) {
	if k.Kty != typeRSA {
		return nil, fmt.Errorf("unsupported key type %s", k.Kty)
	}
	if k.N == "" || k.E == "" {
		return nil, errors.New("malformed JWK RSA key: missing N or E")
	}

	n, err := decodeBase64URLToBigInt(k.N)
	if err != nil {
		return nil, fmt.Errorf("malformed JWK RSA modulus: %w", err)
	}
	e, err := decodeBase64URLToBigInt(k.E)
	if err != nil {
		return nil, fmt.Errorf("malformed JWK RSA exponent: %w", err)
	}
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("malformed JWK RSA exponent")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// EncodeRSAPublicKey builds a Key from an RSA public key. It is used by test
// identity providers that serve a JWKS for runtime-generated keys.
func EncodeRSAPublicKey(kid string, pubKey *rsa.PublicKey) Key {
	return Key{
		Alg: "RS256",
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pubKey.E)).Bytes()),
		Kid: kid,
		Kty: typeRSA,
		N:   base64.RawURLEncoding.EncodeToString(pubKey.N.Bytes()),
		Use: "sig",
	}
}

// decodeBase64URLToBigInt decodes base64url without padding.
func decodeBase64URLToBigInt(encoded string) (*big.Int, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	return new(big.Int).SetBytes(data), nil
}
