package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"tracker-api/internal/auth"
	"tracker-api/internal/config"
	"tracker-api/internal/http/docs"
	"tracker-api/internal/http/handler"
	"tracker-api/internal/http/middleware"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds everything buildRouter wires together. Nil handlers leave
// their routes unmounted; a nil RateLimiter disables rate limiting.
type RouterDeps struct {
	Cfg         *config.Config
	Log         *logger.Logger
	Resolver    *auth.KeyResolver
	APIKeys     *auth.APIKeyAuthenticator
	RateLimiter middleware.Limiter
	Recorder    *telemetry.AuthzRecorder
	Metrics     *telemetry.Metrics
	DB          Pinger
	Redis       *redis.Client

	Permissions *handler.PermissionsHandler
	Members     *handler.MemberHandler
	Simulation  *handler.SimulationHandler
	Debug       *handler.DebugHandler
}

// buildRouter builds the chi.Router with all middlewares and routes.
func buildRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.SecurityHeadersMiddleware(deps.Cfg.IsDev()))
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(telemetry.OTelMiddleware(deps.Cfg.OTELServiceName))
	r.Use(telemetry.MetricsMiddleware(deps.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, `{"status":"ok"}`)
	})
	r.Get("/ready", readinessHandler(deps))
	r.Get("/metrics", metricsHandler(deps.Cfg.MetricsToken))
	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	authenticate := auth.AuthMiddleware(deps.Resolver, deps.APIKeys)

	if deps.Cfg.IsDev() && deps.Debug != nil {
		r.Route("/debug", func(r chi.Router) {
			r.With(authenticate).Get("/auth", deps.Debug.GetAuthDebug)
			r.With(authenticate, middleware.ProjectMiddleware).Get("/auth/projects/{projectId}", deps.Debug.GetAuthDebug)
			r.Get("/db/ping", deps.Debug.PingDB)
		})
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authenticate)
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Cfg.RateLimitPerUserPerMin, deps.Recorder))
		}

		if deps.Permissions != nil {
			r.Get("/permissions", deps.Permissions.GetCatalog)
			r.Get("/me", deps.Permissions.GetMe)
		}

		r.Route("/projects/{projectId}", func(r chi.Router) {
			r.Use(middleware.ProjectMiddleware)

			if deps.Permissions != nil {
				r.Get("/permissions/me", deps.Permissions.GetMyPermissions)
				r.Post("/authorize", deps.Permissions.Authorize)
			}

			if deps.Members != nil {
				r.Route("/members", func(r chi.Router) {
					r.Get("/", deps.Members.ListMembers)
					r.Post("/", deps.Members.AddMember)
					r.Route("/{userId}", func(r chi.Router) {
						r.Patch("/", deps.Members.UpdateMemberRole)
						r.Delete("/", deps.Members.RemoveMember)
						r.Put("/overrides", deps.Members.SetOverrides)
					})
				})
				r.Get("/roles", deps.Members.ListRoles)
				r.Post("/roles", deps.Members.CreateRole)
				r.Post("/roles:provision", deps.Members.ProvisionRoles)
				r.Delete("/roles/{roleId}", deps.Members.DeleteRole)
			}

			if deps.Simulation != nil {
				r.Route("/simulation", func(r chi.Router) {
					r.Get("/", deps.Simulation.GetState)
					r.Put("/", deps.Simulation.Start)
					r.Delete("/", deps.Simulation.Stop)
					r.Put("/preference", deps.Simulation.SetPreference)
					r.Post("/navigation", deps.Simulation.Navigate)
					r.Post("/navigation:confirm", deps.Simulation.ConfirmNavigation)
					r.Post("/navigation:cancel", deps.Simulation.CancelNavigation)
				})
			}
		})
	})

	return r
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// readinessHandler pings Postgres and Redis with a short timeout.
func readinessHandler(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if deps.DB != nil {
			if err := deps.DB.Ping(ctx); err != nil {
				deps.Log.Error(ctx, "readiness check failed",
					logger.Module("http"),
					logger.Action("ready"),
					zap.String("dependency", "database"),
					zap.Error(err),
				)
				writeStatus(w, http.StatusServiceUnavailable, `{"status":"error","message":"database unavailable"}`)
				return
			}
		}

		if deps.Redis != nil {
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				deps.Log.Error(ctx, "readiness check failed",
					logger.Module("http"),
					logger.Action("ready"),
					zap.String("dependency", "redis"),
					zap.Error(err),
				)
				writeStatus(w, http.StatusServiceUnavailable, `{"status":"error","message":"redis unavailable"}`)
				return
			}
		}

		writeStatus(w, http.StatusOK, `{"status":"ready"}`)
	}
}

// metricsHandler serves Prometheus metrics. When token is set the scraper must
// send it in X-Metrics-Token or as a bearer token.
func metricsHandler(token string) http.HandlerFunc {
	prom := telemetry.PrometheusHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			presented := r.Header.Get("X-Metrics-Token")
			if presented == "" {
				presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeStatus(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
				return
			}
		}
		prom.ServeHTTP(w, r)
	}
}
