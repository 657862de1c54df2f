/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"

	jwtgo "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/secopshub/sentriage/internal/jwk"
)

const testKeyBits = 2048

var (
	testKeyOnce    sync.Once
	testRSAPrivKey *rsa.PrivateKey
	testKeyID      string
)

// GetTestRSAPrivateKey returns the process-wide RSA private key used for signing test tokens.
// The key is generated on first use.
func GetTestRSAPrivateKey() *rsa.PrivateKey {
	initTestKey()
	return testRSAPrivKey
}

// GetTestKeyID returns the key id under which the test signing key is published in the JWKS.
func GetTestKeyID() string {
	initTestKey()
	return testKeyID
}

// GetTestPublicJWKS returns the JWKS containing the public part of the test signing key.
func GetTestPublicJWKS() []jwk.Key {
	initTestKey()
	return []jwk.Key{jwk.EncodeRSAPublicKey(testKeyID, &testRSAPrivKey.PublicKey)}
}

func initTestKey() {
	testKeyOnce.Do(func() {
		privKey, err := rsa.GenerateKey(rand.Reader, testKeyBits)
		if err != nil {
			panic(err)
		}
		testRSAPrivKey = privKey
		testKeyID = uuid.NewString()
	})
}

// MakeTokenStringWithHeader creates a test signed token with claims and extra headers.
func MakeTokenStringWithHeader(
	claims jwtgo.Claims, kid string, rsaPrivateKey interface{}, header map[string]interface{},
) (string, error) {
	token := jwtgo.NewWithClaims(jwtgo.SigningMethodRS256, claims)
	token.Header["typ"] = "at+jwt"
	token.Header["kid"] = kid
	for k, v := range header {
		token.Header[k] = v
	}
	return token.SignedString(rsaPrivateKey)
}

// MustMakeTokenStringWithHeader creates a test signed token with claims and extra headers.
// It panics if an error occurs.
func MustMakeTokenStringWithHeader(
	claims jwtgo.Claims, kid string, rsaPrivateKey interface{}, header map[string]interface{},
) string {
	token, err := MakeTokenStringWithHeader(claims, kid, rsaPrivateKey, header)
	if err != nil {
		panic(err)
	}
	return token
}

// MakeTokenString creates a signed token with claims.
func MakeTokenString(claims jwtgo.Claims, kid string, rsaPrivateKey interface{}) (string, error) {
	return MakeTokenStringWithHeader(claims, kid, rsaPrivateKey, nil)
}

// MakeTokenStringSignedWithTestKey creates a test token signed with the test private key.
func MakeTokenStringSignedWithTestKey(claims jwtgo.Claims) (string, error) {
	return MakeTokenStringWithHeader(claims, GetTestKeyID(), GetTestRSAPrivateKey(), nil)
}

// MustMakeTokenStringSignedWithTestKey creates a test token signed with the test private key.
// It panics if an error occurs.
func MustMakeTokenStringSignedWithTestKey(claims jwtgo.Claims) string {
	token, err := MakeTokenStringSignedWithTestKey(claims)
	if err != nil {
		panic(err)
	}
	return token
}
