package service

import (
	"context"
	"errors"
	"fmt"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"

	"go.uber.org/zap"
)

// RoleReader loads a single role of a project.
type RoleReader interface {
	GetRole(ctx context.Context, projectID, roleID string) (*domain.Role, error)
}

// RankChecker applies the strict rank rules that prevent privilege escalation.
// Rule failures are reported as false; errors mean the store failed.
type RankChecker struct {
	resolver    *Resolver
	memberships MembershipStore
	roles       RoleReader
	log         *logger.Logger
}

func NewRankChecker(resolver *Resolver, memberships MembershipStore, roles RoleReader, log *logger.Logger) *RankChecker {
	return &RankChecker{resolver: resolver, memberships: memberships, roles: roles, log: log}
}

// CanManageMember reports whether actor may change the role or overrides of target.
func (c *RankChecker) CanManageMember(ctx context.Context, actorID, targetID, projectID string) (bool, error) {
	return c.canActOnMember(ctx, actorID, targetID, projectID, domain.PermMembersManage)
}

// CanRemoveMember reports whether actor may remove target from the project.
func (c *RankChecker) CanRemoveMember(ctx context.Context, actorID, targetID, projectID string) (bool, error) {
	return c.canActOnMember(ctx, actorID, targetID, projectID, domain.PermMembersRemove)
}

func (c *RankChecker) canActOnMember(ctx context.Context, actorID, targetID, projectID string, perm domain.Permission) (bool, error) {
	if actorID == targetID {
		return false, nil
	}

	eff, err := c.resolver.GetEffectivePermissions(ctx, actorID, projectID)
	if err != nil {
		return false, err
	}
	if eff.IsSystemAdmin {
		return true, nil
	}
	if !eff.Permissions.Has(perm) || eff.Membership == nil || eff.Membership.Role == nil {
		return false, nil
	}

	target, err := c.memberships.GetMembership(ctx, targetID, projectID)
	if errors.Is(err, ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load target membership: %w", err)
	}
	if target.Role == nil {
		return false, nil
	}

	allowed := eff.Membership.Role.Outranks(target.Role)
	c.log.Debug(ctx, "rank comparison",
		logger.Module("authz"),
		logger.Action("can_act_on_member"),
		zap.String("permission", perm.String()),
		zap.Int("actor_position", eff.Membership.Role.Position),
		zap.Int("target_position", target.Role.Position),
		zap.Bool("allowed", allowed),
	)
	return allowed, nil
}

// CanAssignRole reports whether actor may hand out roleID. Nobody but a
// system admin can assign a role at or above their own rank.
func (c *RankChecker) CanAssignRole(ctx context.Context, actorID, projectID, roleID string) (bool, error) {
	eff, err := c.resolver.GetEffectivePermissions(ctx, actorID, projectID)
	if err != nil {
		return false, err
	}
	if eff.IsSystemAdmin {
		return true, nil
	}
	if !eff.Permissions.Has(domain.PermMembersManage) || eff.Membership == nil || eff.Membership.Role == nil {
		return false, nil
	}

	role, err := c.roles.GetRole(ctx, projectID, roleID)
	if errors.Is(err, ErrRoleNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load role: %w", err)
	}
	return eff.Membership.Role.Outranks(role), nil
}
