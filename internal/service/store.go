package service

import (
	"context"

	"tracker-api/internal/domain"
	"tracker-api/internal/repo"
)

// UserStore loads the authorization slice of a user.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// MembershipStore loads a membership joined with its role.
type MembershipStore interface {
	GetMembership(ctx context.Context, userID, projectID string) (*domain.ProjectMembership, error)
}

// RoleStore reads and seeds project roles.
type RoleStore interface {
	GetRole(ctx context.Context, projectID, roleID string) (*domain.Role, error)
	GetDefaultRoleByPosition(ctx context.Context, projectID string, position int) (*domain.Role, error)
	ListRoles(ctx context.Context, projectID string) ([]domain.Role, error)
	InsertDefaultRoles(ctx context.Context, projectID string, defaults, extras []domain.RolePreset) (bool, error)
}

// SettingsStore loads the system-wide role settings.
type SettingsStore interface {
	GetRoleSettings(ctx context.Context) (domain.RoleSettings, error)
}

// MemberStore is the write side of memberships and custom roles.
type MemberStore interface {
	MembershipStore
	RoleStore
	ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMembership, error)
	CountMembersWithRole(ctx context.Context, projectID, roleID string) (int, error)
	AddMember(ctx context.Context, projectID, userID, roleID string) error
	UpdateMemberRole(ctx context.Context, projectID, userID, roleID string) error
	SetOverrides(ctx context.Context, projectID, userID string, perms []domain.Permission) error
	RemoveMember(ctx context.Context, projectID, userID string) error
	CreateRole(ctx context.Context, role *domain.Role) error
	DeleteRole(ctx context.Context, projectID, roleID string, reassignTo *string) (int64, error)
}

// AuditLogger persists audit entries for mutations.
type AuditLogger interface {
	LogAction(ctx context.Context, entry repo.AuditEntry) error
}

// DecisionRecorder counts guard outcomes.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, check string, allowed bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(context.Context, string, bool) {}
