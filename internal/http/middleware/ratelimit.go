package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"tracker-api/internal/auth"
	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/ratelimit"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Limiter decides whether one more request from subject fits in the window.
type Limiter interface {
	Allow(ctx context.Context, subject string, limit int, window time.Duration) (ratelimit.Result, error)
}

// RejectionRecorder counts requests turned away by the limiter.
type RejectionRecorder interface {
	RecordRateLimitRejection(ctx context.Context, route string)
}

// RateLimitMiddleware enforces limitPerMin requests per minute per authenticated user.
// It must run after AuthMiddleware; anonymous requests fall back to the client address.
func RateLimitMiddleware(limiter Limiter, limitPerMin int, recorder RejectionRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			subject := "ip:" + sanitizeRemoteAddr(r.RemoteAddr)
			if p, ok := auth.GetPrincipal(ctx); ok {
				subject = "user:" + p.UserID
			}

			res, err := limiter.Allow(ctx, subject, limitPerMin, time.Minute)
			if err != nil {
				logger.SetRootError(ctx, err)
				log.Error(ctx, "rate limit check failed",
					logger.Module("ratelimit"),
					logger.Action("allow"),
					zap.Error(err),
				)
				httperr.InternalError(w, ctx)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				trace.SpanFromContext(ctx).AddEvent("rate_limit_exceeded")
				if recorder != nil {
					recorder.RecordRateLimitRejection(ctx, getRoutePattern(r))
				}

				retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httperr.WriteError(w, ctx, http.StatusTooManyRequests, httperr.ErrCodeRateLimited, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
