package handler

import (
	"net/http"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MemberHandler exposes membership and role management of a project.
type MemberHandler struct {
	service *service.MemberService
	guards  *service.Guards
}

func NewMemberHandler(service *service.MemberService, guards *service.Guards) *MemberHandler {
	return &MemberHandler{service: service, guards: guards}
}

// DeleteRoleResponse reports how many members moved to the reassignment role.
type DeleteRoleResponse struct {
	RoleID     string `json:"roleId"`
	Reassigned int64  `json:"reassigned"`
}

// ListMembers handles GET /v1/projects/{projectId}/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(ctx, user.ID, chi.URLParam(r, "projectId"))
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, members)
}

// AddMember handles POST /v1/projects/{projectId}/members
func (h *MemberHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)
	projectID := chi.URLParam(r, "projectId")

	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.AddMemberRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	member, err := h.service.AddMember(ctx, user.ID, projectID, req)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}

	log.Info(ctx, "member added",
		logger.Module("members"),
		logger.Action("add"),
		zap.String("target_user_id", member.UserID),
		zap.String("role_id", member.RoleID),
	)

	w.Header().Set("Location", "/v1/projects/"+projectID+"/members/"+member.UserID)
	writeData(w, http.StatusCreated, member)
}

// UpdateMemberRole handles PATCH /v1/projects/{projectId}/members/{userId}
func (h *MemberHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.UpdateMemberRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	member, err := h.service.UpdateMemberRole(ctx, user.ID, chi.URLParam(r, "projectId"), chi.URLParam(r, "userId"), req)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, member)
}

// SetOverrides handles PUT /v1/projects/{projectId}/members/{userId}/overrides
func (h *MemberHandler) SetOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.SetOverridesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	member, err := h.service.SetMemberOverrides(ctx, user.ID, chi.URLParam(r, "projectId"), chi.URLParam(r, "userId"), req)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, member)
}

// RemoveMember handles DELETE /v1/projects/{projectId}/members/{userId}
// Members may remove themselves; removing others needs members.remove and rank.
func (h *MemberHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(ctx, user.ID, chi.URLParam(r, "projectId"), chi.URLParam(r, "userId")); err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRoles handles GET /v1/projects/{projectId}/roles
func (h *MemberHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	roles, err := h.service.ListRoles(ctx, user.ID, chi.URLParam(r, "projectId"))
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, roles)
}

// CreateRole handles POST /v1/projects/{projectId}/roles
func (h *MemberHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectId")

	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.CreateRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.service.CreateCustomRole(ctx, user.ID, projectID, req)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}

	w.Header().Set("Location", "/v1/projects/"+projectID+"/roles/"+role.ID)
	writeData(w, http.StatusCreated, role)
}

// DeleteRole handles DELETE /v1/projects/{projectId}/roles/{roleId}?reassignTo={roleId}
func (h *MemberHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID := chi.URLParam(r, "roleId")

	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var reassignTo *string
	if v := r.URL.Query().Get("reassignTo"); v != "" {
		reassignTo = &v
	}

	n, err := h.service.DeleteRole(ctx, user.ID, chi.URLParam(r, "projectId"), roleID, reassignTo)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, DeleteRoleResponse{RoleID: roleID, Reassigned: n})
}

// ProvisionRoles handles POST /v1/projects/{projectId}/roles:provision
// It is idempotent and returns the role name to id map.
func (h *MemberHandler) ProvisionRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	ids, err := h.service.ProvisionRoles(ctx, user.ID, chi.URLParam(r, "projectId"))
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, ids)
}
