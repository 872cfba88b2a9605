package auth

import (
	"context"
	"net/http"
	"strings"

	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// mapAuthErrorToCode maps auth failure reasons to HTTP error codes
func mapAuthErrorToCode(authErr *AuthError) string {
	if authErr == nil {
		return httperr.ErrCodeInvalidToken
	}

	switch authErr.Reason {
	case AuthFailureMissingAuthorization:
		return httperr.ErrCodeMissingAuthorization
	case AuthFailureInvalidScheme:
		return httperr.ErrCodeInvalidScheme
	case AuthFailureInvalidSignature:
		return httperr.ErrCodeInvalidSignature
	case AuthFailureTokenExpired:
		return httperr.ErrCodeTokenExpired
	case AuthFailureInvalidIssuer:
		return httperr.ErrCodeInvalidIssuer
	case AuthFailureInvalidAudience:
		return httperr.ErrCodeInvalidAudience
	case AuthFailureInvalidAPIKey:
		return httperr.ErrCodeInvalidAPIKey
	default:
		return httperr.ErrCodeInvalidToken
	}
}

// AuthMiddleware authenticates the request through one of two channels:
// an X-API-Key header (when apiKeys is non-nil) or an Authorization Bearer JWT.
// Both channels put the same *Principal in the context.
func AuthMiddleware(resolver *KeyResolver, apiKeys *APIKeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				ctx context.Context
				ok  bool
			)

			if rawKey := r.Header.Get(APIKeyHeader); rawKey != "" && apiKeys != nil {
				ctx, ok = authenticateAPIKey(w, r, apiKeys, rawKey)
			} else {
				ctx, ok = authenticateBearer(w, r, resolver)
			}
			if !ok {
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticateBearer(w http.ResponseWriter, r *http.Request, resolver *KeyResolver) (context.Context, bool) {
	ctx := r.Context()

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		rejectAuth(w, r, NewAuthError(AuthFailureMissingAuthorization, "missing authorization header", nil), "")
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		rejectAuth(w, r, NewAuthError(AuthFailureInvalidScheme, "invalid authorization scheme, expected Bearer", nil), "")
		return nil, false
	}
	tokenString := strings.TrimSpace(parts[1])

	claims, err := resolver.Resolve(ctx, tokenString)
	if err != nil {
		authErr, _ := IsAuthError(err)
		rejectAuth(w, r, authErr, maskToken(tokenString))
		return nil, false
	}

	principal := &Principal{
		UserID: claims.UserID(),
		Method: AuthMethodJWT,
		Issuer: claims.Issuer,
	}
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return acceptPrincipal(ctx, principal), true
}

func authenticateAPIKey(w http.ResponseWriter, r *http.Request, apiKeys *APIKeyAuthenticator, rawKey string) (context.Context, bool) {
	ctx := r.Context()

	principal, err := apiKeys.Authenticate(ctx, rawKey)
	if err != nil {
		authErr, isAuth := IsAuthError(err)
		if !isAuth {
			logger.GetLogger(ctx).Error(ctx, "api key lookup failed",
				logger.Module("auth"),
				logger.Action("api_key"),
				zap.Error(err),
			)
			httperr.InternalError(w, ctx)
			return nil, false
		}
		rejectAuth(w, r, authErr, maskToken(rawKey))
		return nil, false
	}

	return acceptPrincipal(ctx, principal), true
}

func acceptPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = withPrincipal(ctx, p)
	ctx = logger.SetUserIDInContext(ctx, p.UserID)

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("enduser.id", p.UserID),
		attribute.String("auth.method", string(p.Method)),
	)

	logger.GetLogger(ctx).Debug(ctx, "authenticated request",
		logger.Module("auth"),
		logger.Action("authenticate"),
		zap.String("auth_method", string(p.Method)),
		zap.String("issuer", p.Issuer),
	)
	return ctx
}

func rejectAuth(w http.ResponseWriter, r *http.Request, authErr *AuthError, credentialPrefix string) {
	ctx := r.Context()

	reason := AuthFailureUnknown
	message := "invalid or expired credentials"
	if authErr != nil {
		reason = authErr.Reason
		if reason == AuthFailureMissingAuthorization || reason == AuthFailureInvalidScheme {
			message = authErr.Message
		}
	}

	fields := []zap.Field{
		logger.Module("auth"),
		logger.Action("authenticate"),
		zap.String("auth_failure_reason", string(reason)),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if credentialPrefix != "" {
		fields = append(fields, zap.String("credential_prefix", credentialPrefix))
	}
	if authErr != nil && authErr.Err != nil {
		fields = append(fields, zap.Error(authErr.Err))
	}
	logger.GetLogger(ctx).Warn(ctx, "authentication failed", fields...)

	httperr.Unauthorized401(w, ctx, mapAuthErrorToCode(authErr), message)
}
