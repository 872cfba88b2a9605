package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecurityHeadersMiddleware sets the standard hardening headers on every response.
// HSTS is only sent for TLS requests (directly or via X-Forwarded-Proto) and never in dev.
func SecurityHeadersMiddleware(isDev bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		STSSeconds:         31536000,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      isDev,
	}).Handler
}
