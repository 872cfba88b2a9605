package auth

import "context"

// SetPrincipalForTesting injects a Principal into a context.
// Only tests should call this; production code authenticates through AuthMiddleware.
func SetPrincipalForTesting(ctx context.Context, p *Principal) context.Context {
	return withPrincipal(ctx, p)
}
