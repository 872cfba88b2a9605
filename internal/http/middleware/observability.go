package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/observability/requestid"
	"tracker-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware accepts a well-formed inbound X-Request-Id or generates one,
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestid.FromHeader(r.Header.Get(RequestIDHeader))

		ctx := requestid.SetRequestID(r.Context(), reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLoggingMiddleware logs one line per request once the handler returns.
// Bodies and credential headers are never logged.
func RequestLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := logger.SetLoggerInContext(r.Context(), log)
			ctx = logger.InitRootErrorContext(ctx)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			r = r.WithContext(ctx)

			next.ServeHTTP(wrapped, r)

			route := getRoutePattern(r)
			log.Info(ctx, "http request completed",
				logger.Module("http"),
				logger.Action("request"),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.String("query", sanitizeQuery(r.URL.RawQuery)),
				zap.Int("status", wrapped.statusCode),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
				zap.String("remote_addr", sanitizeRemoteAddr(r.RemoteAddr)),
				zap.String("user_agent", sanitizeUserAgent(r.UserAgent())),
			)

			if wrapped.statusCode < http.StatusInternalServerError {
				return
			}

			rootErr := logger.GetRootError(ctx)
			fields := []zap.Field{
				logger.Module("http"),
				logger.Action("http_error"),
				zap.Int("status", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.String("kind", classifyError(rootErr)),
			}
			if rootErr != nil {
				fields = append(fields, zap.String("err", rootErr.Error()))
				var pgErr *pgconn.PgError
				if errors.As(rootErr, &pgErr) {
					fields = append(fields, zap.String("pgcode", pgErr.Code))
				}
			} else {
				fields = append(fields, zap.String("err", "internal server error (unspecified cause)"))
			}
			log.Error(ctx, "http_error", fields...)
		})
	}
}

// RecoveryMiddleware turns a handler panic into a standard 500 response and logs the stack.
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := r.Context()
				logger.SetRootError(ctx, fmt.Errorf("panic: %v", rec))

				log.Error(ctx, "panic_recovered",
					logger.Module("http"),
					logger.Action("panic_recovery"),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", getRoutePattern(r)),
				)

				httperr.InternalError(w, ctx)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var sensitiveQueryKeys = []string{"token", "api_key", "apikey", "password", "secret"}

// sanitizeQuery truncates long query strings and drops credential-looking ones entirely.
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	lower := strings.ToLower(query)
	for _, key := range sensitiveQueryKeys {
		if strings.Contains(lower, key+"=") {
			return "[REDACTED]"
		}
	}
	const maxLen = 200
	if len(query) > maxLen {
		return query[:maxLen] + "..."
	}
	return query
}

// sanitizeRemoteAddr drops the port: 192.168.1.100:54321 -> 192.168.1.100
func sanitizeRemoteAddr(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func sanitizeUserAgent(ua string) string {
	const maxLen = 100
	if len(ua) > maxLen {
		return ua[:maxLen] + "..."
	}
	return ua
}

func getRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// classifyError buckets the root cause of a 5xx for the http_error log line.
func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}

	var pgErr *pgconn.PgError
	switch {
	case strings.HasPrefix(err.Error(), "panic:"):
		return "panic"
	case errors.As(err, &pgErr):
		return "db"
	case errors.Is(err, service.ErrProvisioningFailed):
		return "provisioning"
	case strings.Contains(strings.ToLower(err.Error()), "scan"):
		return "scan"
	}
	return "unknown"
}
