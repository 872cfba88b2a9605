package domain

import (
	"context"
	"time"
)

// =====================================================
// Role Rank Constants
// =====================================================

// Default role positions. Lower number means higher authority.
const (
	PositionOwner  = 0
	PositionAdmin  = 1
	PositionMember = 2
)

// Default role names as shipped. Administrators may rename them, so structural
// lookups go through positions instead.
const (
	RoleNameOwner  = "Owner"
	RoleNameAdmin  = "Admin"
	RoleNameMember = "Member"
)

// =====================================================
// Role Entity (DB Model)
// =====================================================

// Role is a project-scoped set of permissions with a rank position.
type Role struct {
	ID          string       `json:"id" db:"id"`
	ProjectID   string       `json:"projectId" db:"project_id"`
	Name        string       `json:"name" db:"name"`
	Color       string       `json:"color" db:"color"`
	Description *string      `json:"description,omitempty" db:"description"`
	Permissions []Permission `json:"permissions" db:"permissions"`
	IsDefault   bool         `json:"isDefault" db:"is_default"`
	Position    int          `json:"position" db:"position"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`
}

// Summary returns the presentation slice of the role.
func (r *Role) Summary() RoleSummary {
	return RoleSummary{
		ID:       r.ID,
		Name:     r.Name,
		Color:    r.Color,
		Position: r.Position,
	}
}

// Outranks reports whether r has strictly higher authority than other.
func (r *Role) Outranks(other *Role) bool {
	return r.Position < other.Position
}

// RoleSummary is the minimal role shape shown next to members and in role pickers.
type RoleSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Position int    `json:"position"`
}

// =====================================================
// Project Membership Entity (DB Model)
// =====================================================

// ProjectMembership joins a user to a project with exactly one role.
// Overrides are additive: they grant permissions on top of the role and never revoke.
type ProjectMembership struct {
	UserID    string       `json:"userId" db:"user_id"`
	ProjectID string       `json:"projectId" db:"project_id"`
	RoleID    string       `json:"roleId" db:"role_id"`
	Overrides []Permission `json:"overrides" db:"overrides"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" db:"updated_at"`

	// Role is populated by queries that join the member's role.
	Role *Role `json:"role,omitempty" db:"-"`
}

// =====================================================
// User (authorization slice)
// =====================================================

// User carries the account attributes that influence authorization.
type User struct {
	ID            string `json:"id" db:"id"`
	IsSystemAdmin bool   `json:"isSystemAdmin" db:"is_system_admin"`
	IsActive      bool   `json:"isActive" db:"is_active"`
}

// =====================================================
// Effective Permissions (computed)
// =====================================================

// EffectivePermissions is the permission set a user holds in one project.
// For system admins Permissions is the whole catalog and Membership is nil.
type EffectivePermissions struct {
	Permissions   PermissionSet      `json:"permissions"`
	Membership    *ProjectMembership `json:"membership"`
	IsSystemAdmin bool               `json:"isSystemAdmin"`
}

// IsMember reports whether the holder counts as a project member for gating.
func (e *EffectivePermissions) IsMember() bool {
	return e.IsSystemAdmin || e.Membership != nil
}

// =====================================================
// Role Presets
// =====================================================

// RolePreset describes a role to seed into every project.
type RolePreset struct {
	Name        string       `json:"name"`
	Color       string       `json:"color"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	Position    int          `json:"position"`
}

var memberPermissions = []Permission{
	PermProjectView,
	PermMembersView,
	PermBoardView,
	PermTicketsCreate,
	PermTicketsManageOwn,
}

// DefaultRolePresets returns the built-in Owner/Admin/Member definitions ordered by position.
func DefaultRolePresets() []RolePreset {
	admin := make([]Permission, 0, len(catalog))
	for _, p := range AllPermissions() {
		if p != PermProjectDelete {
			admin = append(admin, p)
		}
	}

	member := make([]Permission, len(memberPermissions))
	copy(member, memberPermissions)

	return []RolePreset{
		{
			Name:        RoleNameOwner,
			Color:       "#e11d48",
			Description: "Full control over the project",
			Permissions: AllPermissions(),
			Position:    PositionOwner,
		},
		{
			Name:        RoleNameAdmin,
			Color:       "#f59e0b",
			Description: "Manages members, board and all tickets",
			Permissions: admin,
			Position:    PositionAdmin,
		},
		{
			Name:        RoleNameMember,
			Color:       "#3b82f6",
			Description: "Works on tickets they create",
			Permissions: member,
			Position:    PositionMember,
		},
	}
}

// =====================================================
// System-wide Role Settings
// =====================================================

// RoleOverride customizes one built-in role. Nil fields fall back to the preset.
type RoleOverride struct {
	Name        *string  `json:"name,omitempty"`
	Color       *string  `json:"color,omitempty"`
	Description *string  `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// RoleSettings is the administrator-managed configuration applied at provisioning time.
type RoleSettings struct {
	// Defaults is keyed by default role position.
	Defaults map[int]RoleOverride `json:"defaults,omitempty"`

	// ExtraRoles are seeded into every new project with isDefault=false.
	ExtraRoles []RolePreset `json:"extraRoles,omitempty"`
}

// ResolvePreset applies an optional override on top of a built-in preset.
func ResolvePreset(ctx context.Context, preset RolePreset, override *RoleOverride) RolePreset {
	out := preset
	if override == nil {
		return out
	}
	if override.Name != nil && *override.Name != "" {
		out.Name = *override.Name
	}
	if override.Color != nil && *override.Color != "" {
		out.Color = *override.Color
	}
	if override.Description != nil {
		out.Description = *override.Description
	}
	if override.Permissions != nil {
		out.Permissions = ParsePermissions(ctx, override.Permissions)
	}
	return out
}

// =====================================================
// Management Requests
// =====================================================

// AddMemberRequest adds a user to a project. RoleID is optional; the default
// member role is used when it is empty.
type AddMemberRequest struct {
	UserID string `json:"userId" validate:"required,min=1,max=64"`
	RoleID string `json:"roleId,omitempty" validate:"omitempty,min=1,max=64"`
}

// UpdateMemberRoleRequest changes a member's role.
type UpdateMemberRoleRequest struct {
	RoleID string `json:"roleId" validate:"required,min=1,max=64"`
}

// SetOverridesRequest replaces a member's additive permission overrides.
type SetOverridesRequest struct {
	Permissions []string `json:"permissions" validate:"max=64,dive,min=1,max=64"`
}

// CreateRoleRequest creates a custom (non-default) role.
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=64"`
	Color       string   `json:"color" validate:"omitempty,hexcolor"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions []string `json:"permissions" validate:"max=64,dive,min=1,max=64"`
	Position    int      `json:"position" validate:"min=0"`
}
