package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator verifies a token signed by one issuer.
type TokenValidator interface {
	Validate(tokenString string, kid string) (*CustomClaims, error)
}

// SignedValidator verifies tokens for a single issuer and signing algorithm family.
type SignedValidator struct {
	keyStore  *KeyStore
	issuer    string
	clockSkew time.Duration
	alg       string
}

// NewHS256Validator creates a validator for HMAC-signed tokens.
func NewHS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) *SignedValidator {
	return &SignedValidator{keyStore: keyStore, issuer: issuer, clockSkew: clockSkew, alg: jwt.SigningMethodHS256.Alg()}
}

// NewRS256Validator creates a validator for RSA-signed tokens.
func NewRS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) *SignedValidator {
	return &SignedValidator{keyStore: keyStore, issuer: issuer, clockSkew: clockSkew, alg: jwt.SigningMethodRS256.Alg()}
}

// Validate parses the token, verifies its signature with the key registered for kid
// and checks expiry with the configured leeway.
func (v *SignedValidator) Validate(tokenString string, kid string) (*CustomClaims, error) {
	key, err := v.lookupKey(kid)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithLeeway(v.clockSkew), jwt.WithValidMethods([]string{v.alg}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, NewAuthError(AuthFailureTokenExpired, "token expired", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, NewAuthError(AuthFailureInvalidSignature, "invalid signature", err)
		case errors.Is(err, jwt.ErrTokenInvalidClaims):
			return nil, NewAuthError(AuthFailureInvalidClaims, "invalid claims", err)
		default:
			return nil, NewAuthError(AuthFailureUnknown, "failed to parse token", err)
		}
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, NewAuthError(AuthFailureUnknown, "invalid token", nil)
	}

	if err := claims.Validate(); err != nil {
		return nil, NewAuthError(AuthFailureInvalidClaims, "token has no subject", err)
	}

	return claims, nil
}

func (v *SignedValidator) lookupKey(kid string) (interface{}, error) {
	switch v.alg {
	case jwt.SigningMethodHS256.Alg():
		if secret, ok := v.keyStore.GetHS256Key(v.issuer, kid); ok {
			return secret, nil
		}
	case jwt.SigningMethodRS256.Alg():
		if key, ok := v.keyStore.GetRS256Key(v.issuer, kid); ok {
			return key, nil
		}
	}
	return nil, NewAuthError(AuthFailureInvalidSignature, fmt.Sprintf("no %s key for issuer %s and kid %s", v.alg, v.issuer, kid), nil)
}
