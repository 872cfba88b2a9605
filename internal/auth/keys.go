package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyID is used when a token header carries no kid.
const DefaultKeyID = "v1"

// KeyStore holds verification keys indexed by issuer, then kid.
type KeyStore struct {
	hs256Keys map[string]map[string][]byte
	rs256Keys map[string]map[string]*rsa.PublicKey
}

// NewKeyStore creates an empty KeyStore
func NewKeyStore() *KeyStore {
	return &KeyStore{
		hs256Keys: make(map[string]map[string][]byte),
		rs256Keys: make(map[string]map[string]*rsa.PublicKey),
	}
}

// LoadHS256Key registers a raw HMAC secret.
func (ks *KeyStore) LoadHS256Key(issuer, kid string, secret []byte) {
	if _, ok := ks.hs256Keys[issuer]; !ok {
		ks.hs256Keys[issuer] = make(map[string][]byte)
	}
	ks.hs256Keys[issuer][kid] = secret
}

// LoadHS256KeyBase64 registers an HMAC secret given in standard or URL-safe base64.
func (ks *KeyStore) LoadHS256KeyBase64(issuer, kid, encoded string) error {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if secret, err := enc.DecodeString(encoded); err == nil && len(secret) > 0 {
			ks.LoadHS256Key(issuer, kid, secret)
			return nil
		}
	}
	return fmt.Errorf("HS256 secret for issuer %s is not valid base64", issuer)
}

// LoadRS256Key parses and registers a PEM encoded RSA public key.
// Literal "\n" sequences are accepted so keys can be passed through env vars.
func (ks *KeyStore) LoadRS256Key(issuer, kid string, publicKeyPEM string) error {
	normalized := strings.TrimSpace(strings.ReplaceAll(publicKeyPEM, `\n`, "\n"))

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(normalized))
	if err != nil {
		return fmt.Errorf("failed to parse RSA public key: %w", err)
	}

	if _, ok := ks.rs256Keys[issuer]; !ok {
		ks.rs256Keys[issuer] = make(map[string]*rsa.PublicKey)
	}
	ks.rs256Keys[issuer][kid] = publicKey
	return nil
}

// GetHS256Key looks up an HMAC secret.
func (ks *KeyStore) GetHS256Key(issuer, kid string) ([]byte, bool) {
	secret, ok := ks.hs256Keys[issuer][kid]
	return secret, ok
}

// GetRS256Key looks up an RSA public key.
func (ks *KeyStore) GetRS256Key(issuer, kid string) (*rsa.PublicKey, bool) {
	key, ok := ks.rs256Keys[issuer][kid]
	return key, ok
}
