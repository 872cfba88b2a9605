package auth

import "context"

// AuthMethod names the channel a principal authenticated through.
type AuthMethod string

const (
	AuthMethodJWT    AuthMethod = "jwt"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// Principal is the authenticated caller. Both channels resolve to a user id and
// nothing else; authorization is decided downstream from the user record.
type Principal struct {
	UserID string
	Method AuthMethod
	Issuer string // JWT issuer, empty for API keys
	KeyID  string // API key id, empty for JWTs
}

type contextKey string

const (
	claimsContextKey    contextKey = "claims"
	principalContextKey contextKey = "principal"
)

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetPrincipal returns the authenticated caller, if any.
func GetPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok && p != nil && p.UserID != ""
}

// GetClaims returns the verified JWT claims for JWT-authenticated requests.
func GetClaims(ctx context.Context) (*CustomClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*CustomClaims)
	return claims, ok
}
