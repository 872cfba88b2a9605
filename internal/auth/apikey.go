package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyHeader carries service-to-service credentials.
const APIKeyHeader = "X-API-Key"

// APIKeyRecord is the stored side of an API key.
type APIKeyRecord struct {
	ID     string
	UserID string
}

// APIKeyStore looks up keys by their SHA-256 hex digest. found=false means the key
// is unknown or revoked.
type APIKeyStore interface {
	LookupAPIKey(ctx context.Context, keyHash string) (rec APIKeyRecord, found bool, err error)
}

// HashAPIKey returns the hex SHA-256 digest stored for a raw key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// APIKeyAuthenticator resolves raw API keys to principals.
type APIKeyAuthenticator struct {
	store APIKeyStore
}

// NewAPIKeyAuthenticator creates an authenticator over store.
func NewAPIKeyAuthenticator(store APIKeyStore) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{store: store}
}

// Authenticate returns the principal owning rawKey. Unknown keys yield an *AuthError;
// store failures are returned as plain errors.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*Principal, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, NewAuthError(AuthFailureInvalidAPIKey, "empty api key", nil)
	}

	rec, found, err := a.store.LookupAPIKey(ctx, HashAPIKey(rawKey))
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if !found || rec.UserID == "" {
		return nil, NewAuthError(AuthFailureInvalidAPIKey, "unknown api key", nil)
	}

	return &Principal{
		UserID: rec.UserID,
		Method: AuthMethodAPIKey,
		KeyID:  rec.ID,
	}, nil
}
