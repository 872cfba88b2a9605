package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/repo"

	"go.uber.org/zap"
)

const defaultCustomRoleColor = "#64748b"

// MemberService runs the membership and custom role flows. Every flow checks
// membership before revealing whether the target exists.
type MemberService struct {
	store       MemberStore
	guards      *Guards
	rank        *RankChecker
	provisioner *RoleProvisioner
	audit       AuditLogger
	log         *logger.Logger
}

func NewMemberService(store MemberStore, guards *Guards, rank *RankChecker, provisioner *RoleProvisioner, audit AuditLogger, log *logger.Logger) *MemberService {
	return &MemberService{
		store:       store,
		guards:      guards,
		rank:        rank,
		provisioner: provisioner,
		audit:       audit,
		log:         log,
	}
}

// ListMembers returns the project members ordered by rank.
func (s *MemberService) ListMembers(ctx context.Context, actorID, projectID string) ([]domain.ProjectMembership, error) {
	if _, err := s.guards.RequirePermission(ctx, actorID, projectID, domain.PermMembersView); err != nil {
		return nil, err
	}

	members, err := s.store.ListMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember adds a user with the requested role, or the default member role.
func (s *MemberService) AddMember(ctx context.Context, actorID, projectID string, req domain.AddMemberRequest) (*domain.ProjectMembership, error) {
	if _, err := s.guards.RequirePermission(ctx, actorID, projectID, domain.PermMembersInvite); err != nil {
		return nil, err
	}

	roleID := req.RoleID
	if roleID == "" {
		role, err := s.provisioner.GetMemberRoleForProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		roleID = role.ID
	} else {
		if _, err := s.store.GetRole(ctx, projectID, roleID); err != nil {
			return nil, err
		}
		ok, err := s.rank.CanAssignRole(ctx, actorID, projectID, roleID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, rankViolation("cannot assign a role at or above your own rank")
		}
	}

	if err := s.store.AddMember(ctx, projectID, req.UserID, roleID); err != nil {
		return nil, err
	}

	s.logAudit(ctx, projectID, actorID, "member.added", "member", req.UserID, map[string]any{"role_id": roleID})
	return s.store.GetMembership(ctx, req.UserID, projectID)
}

// UpdateMemberRole moves target to another role.
func (s *MemberService) UpdateMemberRole(ctx context.Context, actorID, projectID, targetID string, req domain.UpdateMemberRoleRequest) (*domain.ProjectMembership, error) {
	if _, err := s.guards.RequireMembership(ctx, actorID, projectID); err != nil {
		return nil, err
	}

	target, err := s.store.GetMembership(ctx, targetID, projectID)
	if err != nil {
		return nil, err
	}
	role, err := s.store.GetRole(ctx, projectID, req.RoleID)
	if err != nil {
		return nil, err
	}

	if err := s.requireManage(ctx, actorID, targetID, projectID); err != nil {
		return nil, err
	}
	ok, err := s.rank.CanAssignRole(ctx, actorID, projectID, role.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rankViolation("cannot assign a role at or above your own rank")
	}

	if target.Role != nil && isOwnerRole(target.Role) && !isOwnerRole(role) {
		if err := s.requireAnotherOwner(ctx, projectID, target.RoleID); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateMemberRole(ctx, projectID, targetID, role.ID); err != nil {
		return nil, err
	}

	s.logAudit(ctx, projectID, actorID, "member.role_changed", "member", targetID, map[string]any{
		"from_role_id": target.RoleID,
		"to_role_id":   role.ID,
	})
	return s.store.GetMembership(ctx, targetID, projectID)
}

// SetMemberOverrides replaces the additive overrides of target. Unknown
// permissions are dropped. Actors who are not system admins can only grant
// permissions they hold themselves.
func (s *MemberService) SetMemberOverrides(ctx context.Context, actorID, projectID, targetID string, req domain.SetOverridesRequest) (*domain.ProjectMembership, error) {
	eff, err := s.guards.RequireMembership(ctx, actorID, projectID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetMembership(ctx, targetID, projectID); err != nil {
		return nil, err
	}
	if err := s.requireManage(ctx, actorID, targetID, projectID); err != nil {
		return nil, err
	}

	perms := domain.ParsePermissions(ctx, req.Permissions)
	if !eff.IsSystemAdmin {
		for _, p := range perms {
			if !eff.Permissions.Has(p) {
				return nil, newAuthzError(KindMissingPermission,
					fmt.Sprintf("cannot grant %s without holding it", p), p)
			}
		}
	}

	if err := s.store.SetOverrides(ctx, projectID, targetID, perms); err != nil {
		return nil, err
	}

	s.logAudit(ctx, projectID, actorID, "member.overrides_set", "member", targetID, map[string]any{
		"permissions": perms,
	})
	return s.store.GetMembership(ctx, targetID, projectID)
}

// RemoveMember removes target. Members may leave on their own unless they
// hold the owner role.
func (s *MemberService) RemoveMember(ctx context.Context, actorID, projectID, targetID string) error {
	if _, err := s.guards.RequireMembership(ctx, actorID, projectID); err != nil {
		return err
	}

	target, err := s.store.GetMembership(ctx, targetID, projectID)
	if err != nil {
		return err
	}

	if actorID == targetID {
		if target.Role != nil && isOwnerRole(target.Role) {
			return ErrOwnerCannotLeave
		}
	} else {
		ok, err := s.rank.CanRemoveMember(ctx, actorID, targetID, projectID)
		if err != nil {
			return err
		}
		if !ok {
			return rankViolation("cannot remove a member of equal or higher rank")
		}
		if target.Role != nil && isOwnerRole(target.Role) {
			if err := s.requireAnotherOwner(ctx, projectID, target.RoleID); err != nil {
				return err
			}
		}
	}

	if err := s.store.RemoveMember(ctx, projectID, targetID); err != nil {
		return err
	}

	action := "member.removed"
	if actorID == targetID {
		action = "member.left"
	}
	s.logAudit(ctx, projectID, actorID, action, "member", targetID, nil)
	return nil
}

// GetRole returns one role of the project to a member.
func (s *MemberService) GetRole(ctx context.Context, actorID, projectID, roleID string) (*domain.Role, error) {
	if _, err := s.guards.RequireMembership(ctx, actorID, projectID); err != nil {
		return nil, err
	}
	return s.store.GetRole(ctx, projectID, roleID)
}

// ListRoles returns the project roles ordered by rank, provisioning the
// defaults first if the project has none.
func (s *MemberService) ListRoles(ctx context.Context, actorID, projectID string) ([]domain.Role, error) {
	if _, err := s.guards.RequireMembership(ctx, actorID, projectID); err != nil {
		return nil, err
	}

	roles, err := s.store.ListRoles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	if hasDefaultRoles(roles) {
		return roles, nil
	}

	if _, err := s.provisioner.CreateDefaultRolesForProject(ctx, projectID); err != nil {
		return nil, err
	}
	roles, err = s.store.ListRoles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ProvisionRoles seeds the default roles of a project. Restricted to members
// holding members.manage.
func (s *MemberService) ProvisionRoles(ctx context.Context, actorID, projectID string) (map[string]string, error) {
	if _, err := s.guards.RequirePermission(ctx, actorID, projectID, domain.PermMembersManage); err != nil {
		return nil, err
	}
	return s.provisioner.CreateDefaultRolesForProject(ctx, projectID)
}

// CreateCustomRole creates a non-default role strictly below the actor's rank.
// Permissions outside the actor's own set cannot be granted.
func (s *MemberService) CreateCustomRole(ctx context.Context, actorID, projectID string, req domain.CreateRoleRequest) (*domain.Role, error) {
	eff, err := s.guards.RequirePermission(ctx, actorID, projectID, domain.PermMembersManage)
	if err != nil {
		return nil, err
	}

	if req.Position <= domain.PositionOwner {
		return nil, ErrInvalidPosition
	}
	if !eff.IsSystemAdmin {
		if eff.Membership == nil || eff.Membership.Role == nil || req.Position <= eff.Membership.Role.Position {
			return nil, rankViolation("custom roles must rank below your own role")
		}
	}

	perms := domain.ParsePermissions(ctx, req.Permissions)
	if !eff.IsSystemAdmin {
		for _, p := range perms {
			if !eff.Permissions.Has(p) {
				return nil, newAuthzError(KindMissingPermission,
					fmt.Sprintf("cannot grant %s without holding it", p), p)
			}
		}
	}

	existing, err := s.store.ListRoles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	for _, r := range existing {
		if strings.EqualFold(r.Name, req.Name) {
			return nil, ErrDuplicateRoleName
		}
	}

	color := req.Color
	if color == "" {
		color = defaultCustomRoleColor
	}
	role := &domain.Role{
		ProjectID:   projectID,
		Name:        req.Name,
		Color:       color,
		Description: req.Description,
		Permissions: perms,
		IsDefault:   false,
		Position:    req.Position,
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	s.logAudit(ctx, projectID, actorID, "role.created", "role", role.ID, map[string]any{
		"name":     role.Name,
		"position": role.Position,
	})
	return role, nil
}

// DeleteRole deletes a custom role. Members holding it move to reassignTo,
// or the call fails with ErrRoleInUse when reassignTo is nil.
func (s *MemberService) DeleteRole(ctx context.Context, actorID, projectID, roleID string, reassignTo *string) (int64, error) {
	eff, err := s.guards.RequirePermission(ctx, actorID, projectID, domain.PermMembersManage)
	if err != nil {
		return 0, err
	}

	role, err := s.store.GetRole(ctx, projectID, roleID)
	if err != nil {
		return 0, err
	}
	if role.IsDefault {
		return 0, ErrDefaultRoleImmutable
	}
	if !eff.IsSystemAdmin && (eff.Membership == nil || eff.Membership.Role == nil || !eff.Membership.Role.Outranks(role)) {
		return 0, rankViolation("cannot delete a role at or above your own rank")
	}

	if reassignTo != nil {
		if *reassignTo == roleID {
			return 0, ErrInvalidReassignTarget
		}
		if _, err := s.store.GetRole(ctx, projectID, *reassignTo); err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				return 0, ErrInvalidReassignTarget
			}
			return 0, err
		}
		ok, err := s.rank.CanAssignRole(ctx, actorID, projectID, *reassignTo)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, rankViolation("cannot reassign members to a role at or above your own rank")
		}
	} else {
		n, err := s.store.CountMembersWithRole(ctx, projectID, roleID)
		if err != nil {
			return 0, fmt.Errorf("count role members: %w", err)
		}
		if n > 0 {
			return 0, ErrRoleInUse
		}
	}

	reassigned, err := s.store.DeleteRole(ctx, projectID, roleID, reassignTo)
	if err != nil {
		return 0, err
	}

	meta := map[string]any{"name": role.Name, "reassigned": reassigned}
	if reassignTo != nil {
		meta["reassigned_to"] = *reassignTo
	}
	s.logAudit(ctx, projectID, actorID, "role.deleted", "role", roleID, meta)
	return reassigned, nil
}

func (s *MemberService) requireManage(ctx context.Context, actorID, targetID, projectID string) error {
	ok, err := s.rank.CanManageMember(ctx, actorID, targetID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return rankViolation("cannot manage a member of equal or higher rank")
	}
	return nil
}

// requireAnotherOwner fails with ErrLastOwner when ownerRoleID has a single holder.
func (s *MemberService) requireAnotherOwner(ctx context.Context, projectID, ownerRoleID string) error {
	n, err := s.store.CountMembersWithRole(ctx, projectID, ownerRoleID)
	if err != nil {
		return fmt.Errorf("count owners: %w", err)
	}
	if n <= 1 {
		return ErrLastOwner
	}
	return nil
}

func (s *MemberService) logAudit(ctx context.Context, projectID, actorID, action, resourceType, resourceID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.LogAction(ctx, repo.AuditEntry{
		ProjectID:    projectID,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		RequestID:    logger.GetRequestIDFromContext(ctx),
	})
	if err != nil {
		// Audit failures never fail the mutation.
		s.log.Error(ctx, "failed to write audit log",
			logger.Module("members"),
			logger.Action(action),
			zap.Error(err),
		)
	}
}

func isOwnerRole(r *domain.Role) bool {
	return r.IsDefault && r.Position == domain.PositionOwner
}

func hasDefaultRoles(roles []domain.Role) bool {
	for _, r := range roles {
		if r.IsDefault {
			return true
		}
	}
	return false
}
