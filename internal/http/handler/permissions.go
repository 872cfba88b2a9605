package handler

import (
	"fmt"
	"net/http"

	"tracker-api/internal/auth"
	"tracker-api/internal/domain"
	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PermissionsHandler serves the catalog, the caller's own permissions and the
// authorize endpoint used by route layers of other services.
type PermissionsHandler struct {
	guards *service.Guards
}

func NewPermissionsHandler(guards *service.Guards) *PermissionsHandler {
	return &PermissionsHandler{guards: guards}
}

// CatalogResponse lists every permission with its presentation metadata.
type CatalogResponse struct {
	Permissions []domain.PermissionMetadata `json:"permissions"`
	Categories  []domain.CategoryMetadata   `json:"categories"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	ID            string `json:"id"`
	IsSystemAdmin bool   `json:"isSystemAdmin"`
	IsActive      bool   `json:"isActive"`
	AuthMethod    string `json:"authMethod"`
}

// MyPermissionsResponse is the caller's effective permission set in one project.
type MyPermissionsResponse struct {
	ProjectID     string               `json:"projectId"`
	IsMember      bool                 `json:"isMember"`
	IsSystemAdmin bool                 `json:"isSystemAdmin"`
	Role          *domain.RoleSummary  `json:"role,omitempty"`
	Overrides     []domain.Permission  `json:"overrides"`
	Permissions   domain.PermissionSet `json:"permissions"`
}

// GetCatalog handles GET /v1/permissions
func (h *PermissionsHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, CatalogResponse{
		Permissions: domain.PermissionCatalog(),
		Categories:  domain.Categories(),
	})
}

// GetMe handles GET /v1/me
func (h *PermissionsHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	resp := MeResponse{ID: user.ID, IsSystemAdmin: user.IsSystemAdmin, IsActive: user.IsActive}
	if p, ok := auth.GetPrincipal(r.Context()); ok {
		resp.AuthMethod = string(p.Method)
	}
	writeData(w, http.StatusOK, resp)
}

// GetMyPermissions handles GET /v1/projects/{projectId}/permissions/me
// Non-members get an empty set rather than an error so the UI can render.
func (h *PermissionsHandler) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectId")

	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	eff, err := h.guards.Resolver().GetEffectivePermissions(ctx, user.ID, projectID)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}

	resp := MyPermissionsResponse{
		ProjectID:     projectID,
		IsMember:      eff.IsMember(),
		IsSystemAdmin: eff.IsSystemAdmin,
		Overrides:     []domain.Permission{},
		Permissions:   eff.Permissions,
	}
	if m := eff.Membership; m != nil {
		resp.Overrides = domain.ParsePermissions(ctx, m.Overrides)
		if m.Role != nil {
			summary := m.Role.Summary()
			resp.Role = &summary
		}
	}
	writeData(w, http.StatusOK, resp)
}

// Authorize handles POST /v1/projects/{projectId}/authorize
// An allowed decision is 200 {"allowed":true}; a denial is the usual 403 envelope.
func (h *PermissionsHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)
	projectID := chi.URLParam(r, "projectId")

	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.AuthorizeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var err error
	switch req.Resource {
	case domain.ResourceTicket:
		err = h.guards.RequireTicketPermission(ctx, user.ID, projectID, req.OwnerID, domain.TicketAction(req.Action))
	case domain.ResourceComment, domain.ResourceAttachment:
		action := domain.ContentAction(req.Action)
		if action != domain.ContentEdit && action != domain.ContentDelete {
			httperr.BadRequest400WithFields(w, ctx, httperr.ErrCodeValidationError, "validation failed",
				map[string]string{"action": fmt.Sprintf("must be one of: %s %s", domain.ContentEdit, domain.ContentDelete)})
			return
		}
		if req.Resource == domain.ResourceComment {
			err = h.guards.RequireCommentPermission(ctx, user.ID, projectID, req.OwnerID, action)
		} else {
			err = h.guards.RequireAttachmentPermission(ctx, user.ID, projectID, req.OwnerID, action)
		}
	case domain.ResourcePermission:
		if !domain.IsValidPermission(req.Permission) {
			httperr.BadRequest400WithFields(w, ctx, httperr.ErrCodeValidationError, "validation failed",
				map[string]string{"permission": "unknown permission"})
			return
		}
		_, err = h.guards.RequirePermission(ctx, user.ID, projectID, domain.Permission(req.Permission))
	}
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}

	log.Debug(ctx, "authorize allowed",
		logger.Module("authz"),
		logger.Action("authorize"),
		zap.String("resource", string(req.Resource)),
		zap.String("requested_action", req.Action),
	)
	writeData(w, http.StatusOK, domain.AuthorizeResponse{Allowed: true})
}
