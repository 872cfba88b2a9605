package service

import (
	"context"
	"errors"
	"fmt"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Resolver computes effective permissions. Every call re-reads the store so
// role and override changes apply on the next request.
type Resolver struct {
	users       UserStore
	memberships MembershipStore
	log         *logger.Logger
	tracer      trace.Tracer
}

func NewResolver(users UserStore, memberships MembershipStore, log *logger.Logger) *Resolver {
	return &Resolver{
		users:       users,
		memberships: memberships,
		log:         log,
		tracer:      telemetry.Tracer(),
	}
}

// GetEffectivePermissions returns the permission set of userID in projectID.
//
// System admins get the whole catalog without a membership lookup. A missing
// membership (or missing user row) yields an empty set, not an error.
func (r *Resolver) GetEffectivePermissions(ctx context.Context, userID, projectID string) (*domain.EffectivePermissions, error) {
	ctx, span := r.tracer.Start(ctx, "authz.GetEffectivePermissions", trace.WithAttributes(
		attribute.String("project.id", projectID),
	))
	defer span.End()

	user, err := r.users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user = nil
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user != nil && user.IsSystemAdmin {
		span.SetAttributes(attribute.Bool("authz.system_admin", true))
		return &domain.EffectivePermissions{
			Permissions:   domain.FullPermissionSet(),
			Membership:    nil,
			IsSystemAdmin: true,
		}, nil
	}

	membership, err := r.memberships.GetMembership(ctx, userID, projectID)
	if errors.Is(err, ErrMemberNotFound) {
		return &domain.EffectivePermissions{Permissions: domain.NewPermissionSet()}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load membership: %w", err)
	}

	var rolePerms []domain.Permission
	if membership.Role != nil {
		rolePerms = domain.ParsePermissions(ctx, membership.Role.Permissions)
	} else {
		r.log.Warn(ctx, "membership loaded without its role, treating role permissions as empty",
			logger.Module("permissions"),
			logger.Action("resolve"),
			zap.String("role_id", membership.RoleID),
		)
	}
	overrides := domain.ParsePermissions(ctx, membership.Overrides)

	perms := domain.NewPermissionSet(rolePerms...).Union(domain.NewPermissionSet(overrides...))
	span.SetAttributes(attribute.Int("authz.permission_count", len(perms)))

	return &domain.EffectivePermissions{
		Permissions: perms,
		Membership:  membership,
	}, nil
}

// HasPermission reports whether the user holds perm in the project.
func (r *Resolver) HasPermission(ctx context.Context, userID, projectID string, perm domain.Permission) (bool, error) {
	eff, err := r.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return eff.Permissions.Has(perm), nil
}

// HasAnyPermission reports whether the user holds at least one of perms.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID, projectID string, perms ...domain.Permission) (bool, error) {
	eff, err := r.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return eff.Permissions.HasAny(perms...), nil
}

// HasAllPermissions reports whether the user holds every one of perms.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID, projectID string, perms ...domain.Permission) (bool, error) {
	eff, err := r.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return eff.Permissions.HasAll(perms...), nil
}

// IsMember reports whether the user is a member. System admins count as virtual members.
func (r *Resolver) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	eff, err := r.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return eff.IsMember(), nil
}
