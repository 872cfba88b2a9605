package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tracker-api/internal/auth"
	"tracker-api/internal/domain"
	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is the slice of pgxpool.Pool the debug endpoints need.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DebugHandler provides development-only diagnostics. Every endpoint answers
// 404 outside dev so the routes cannot be probed in production.
type DebugHandler struct {
	appEnv string
	pool   DBPool
	guards *service.Guards
}

func NewDebugHandler(appEnv string, pool DBPool, guards *service.Guards) *DebugHandler {
	if appEnv == "" {
		appEnv = "production"
	}
	return &DebugHandler{appEnv: appEnv, pool: pool, guards: guards}
}

// DebugAuthData describes how the request authenticated and, for project
// routes, what the caller may do there.
type DebugAuthData struct {
	AuthMethod    string                       `json:"authMethod"`
	UserID        string                       `json:"userId"`
	TokenIssuer   *string                      `json:"tokenIssuer,omitempty"`
	APIKeyID      *string                      `json:"apiKeyId,omitempty"`
	ProjectID     *string                      `json:"projectId,omitempty"`
	Effective     *domain.EffectivePermissions `json:"effective,omitempty"`
	IsSystemAdmin bool                         `json:"isSystemAdmin"`
}

func (h *DebugHandler) isDev() bool {
	return h.appEnv == "dev" || h.appEnv == "development"
}

func (h *DebugHandler) blockOutsideDev(w http.ResponseWriter, r *http.Request) bool {
	if h.isDev() {
		return false
	}
	ctx := r.Context()
	logger.GetLogger(ctx).Warn(ctx, "debug endpoint accessed in non-dev environment",
		logger.Module("debug"),
		logger.Action("guard"),
		zap.String("app_env", h.appEnv),
	)
	http.NotFound(w, r)
	return true
}

// GetAuthDebug handles GET /debug/auth and GET /debug/auth/projects/{projectId}
func (h *DebugHandler) GetAuthDebug(w http.ResponseWriter, r *http.Request) {
	if h.blockOutsideDev(w, r) {
		return
	}
	ctx := r.Context()

	principal, ok := auth.GetPrincipal(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeUnauthenticated, "authentication required")
		return
	}

	data := &DebugAuthData{
		AuthMethod: string(principal.Method),
		UserID:     principal.UserID,
	}
	if principal.Issuer != "" {
		data.TokenIssuer = &principal.Issuer
	}
	if principal.KeyID != "" {
		data.APIKeyID = &principal.KeyID
	}

	if projectID := chi.URLParam(r, "projectId"); projectID != "" && h.guards != nil {
		eff, err := h.guards.Resolver().GetEffectivePermissions(ctx, principal.UserID, projectID)
		if err != nil {
			handleServiceError(w, ctx, err)
			return
		}
		data.ProjectID = &projectID
		data.Effective = eff
		data.IsSystemAdmin = eff.IsSystemAdmin
	}

	writeData(w, http.StatusOK, data)
}

// PingDB handles GET /debug/db/ping by running SELECT 1 with a short timeout.
func (h *DebugHandler) PingDB(w http.ResponseWriter, r *http.Request) {
	if h.blockOutsideDev(w, r) {
		return
	}
	ctx := r.Context()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := h.pool.QueryRow(pingCtx, "SELECT 1").Scan(&result); err != nil {
		fields := []zap.Field{logger.Module("debug"), logger.Action("db_ping"), zap.Error(err)}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			fields = append(fields, zap.String("pgcode", pgErr.Code))
		}
		logger.GetLogger(ctx).Error(ctx, "db_ping_failed", fields...)
		logger.SetRootError(ctx, err)
		httperr.InternalError(w, ctx)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
