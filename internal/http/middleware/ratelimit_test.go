package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tracker-api/internal/auth"
	"tracker-api/internal/http/httperr"
	"tracker-api/internal/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	subjects []string
	result   ratelimit.Result
	err      error
}

func (s *stubLimiter) Allow(_ context.Context, subject string, limit int, _ time.Duration) (ratelimit.Result, error) {
	s.subjects = append(s.subjects, subject)
	res := s.result
	res.Limit = limit
	return res, s.err
}

type countingRecorder struct{ routes []string }

func (c *countingRecorder) RecordRateLimitRejection(_ context.Context, route string) {
	c.routes = append(c.routes, route)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.RemoteAddr = "10.0.0.7:4242"
	if userID != "" {
		req = req.WithContext(auth.SetPrincipalForTesting(req.Context(), &auth.Principal{UserID: userID, Method: auth.AuthMethodJWT}))
	}
	return req
}

func TestRateLimitMiddleware_Allows(t *testing.T) {
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: true, Remaining: 9, ResetAt: time.Now().Add(time.Minute)}}
	handler := RateLimitMiddleware(limiter, 10, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("u1"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"user:u1"}, limiter.subjects)
}

func TestRateLimitMiddleware_AnonymousFallsBackToAddress(t *testing.T) {
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: true}}
	RateLimitMiddleware(limiter, 10, nil)(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs(""))

	assert.Equal(t, []string{"ip:10.0.0.7"}, limiter.subjects)
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: false, ResetAt: time.Now().Add(30 * time.Second)}}
	recorder := &countingRecorder{}
	handler := RateLimitMiddleware(limiter, 10, recorder)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("u1"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httperr.ErrCodeRateLimited, decodeError(t, rec).Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"/v1/me"}, recorder.routes)
}

func TestRateLimitMiddleware_LimiterFailure(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	rec := httptest.NewRecorder()
	RateLimitMiddleware(limiter, 10, nil)(okHandler()).ServeHTTP(rec, requestAs("u1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, httperr.ErrCodeInternalError, decodeError(t, rec).Error.Code)
}

func TestRateLimitMiddleware_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := RateLimitMiddleware(ratelimit.NewRedisRateLimiter(client, "ratelimit"), 2, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs("u1"))
		codes = append(codes, rec.Code)
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("u2"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
