package service

import (
	"context"
	"errors"
	"fmt"

	"tracker-api/internal/auth"
	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"

	"go.uber.org/zap"
)

// Guards enforce authorization at request time. Each guard either returns
// normally or fails with an *AuthzError on the first failing condition.
type Guards struct {
	resolver *Resolver
	users    UserStore
	recorder DecisionRecorder
	log      *logger.Logger
}

// NewGuards creates the guard set. recorder may be nil.
func NewGuards(resolver *Resolver, users UserStore, recorder DecisionRecorder, log *logger.Logger) *Guards {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Guards{resolver: resolver, users: users, recorder: recorder, log: log}
}

// Resolver exposes the underlying resolver for read-only callers.
func (g *Guards) Resolver() *Resolver {
	return g.resolver
}

// RequireAuth resolves the principal from ctx and loads the account.
func (g *Guards) RequireAuth(ctx context.Context) (*domain.User, error) {
	principal, ok := auth.GetPrincipal(ctx)
	if !ok {
		g.decide(ctx, "require_auth", false, zap.String("reason", "no_principal"))
		return nil, newAuthzError(KindUnauthenticated, "authentication required")
	}

	user, err := g.users.GetUser(ctx, principal.UserID)
	if errors.Is(err, ErrUserNotFound) {
		g.decide(ctx, "require_auth", false, zap.String("reason", "unknown_user"))
		return nil, newAuthzError(KindUnauthenticated, "authentication required")
	}
	if err != nil {
		return nil, fmt.Errorf("load principal: %w", err)
	}

	if !user.IsActive {
		g.decide(ctx, "require_auth", false, zap.String("reason", "account_disabled"))
		return nil, newAuthzError(KindAccountDisabled, "account is disabled")
	}

	g.decide(ctx, "require_auth", true)
	return user, nil
}

// RequireSystemAdmin requires an authenticated, active system admin.
func (g *Guards) RequireSystemAdmin(ctx context.Context) (*domain.User, error) {
	user, err := g.RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !user.IsSystemAdmin {
		g.decide(ctx, "require_system_admin", false)
		return nil, newAuthzError(KindForbidden, "system administrator required")
	}
	g.decide(ctx, "require_system_admin", true)
	return user, nil
}

// RequireMembership requires the user to be a member or a system admin.
func (g *Guards) RequireMembership(ctx context.Context, userID, projectID string) (*domain.EffectivePermissions, error) {
	eff, err := g.resolver.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !eff.IsMember() {
		g.decide(ctx, "require_membership", false)
		return nil, notAMember()
	}
	g.decide(ctx, "require_membership", true)
	return eff, nil
}

// RequirePermission requires perm in the project.
func (g *Guards) RequirePermission(ctx context.Context, userID, projectID string, perm domain.Permission) (*domain.EffectivePermissions, error) {
	eff, err := g.resolver.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !eff.IsMember() {
		g.decide(ctx, "require_permission", false, zap.String("permission", perm.String()))
		return nil, notAMember()
	}
	if !eff.Permissions.Has(perm) {
		g.decide(ctx, "require_permission", false, zap.String("permission", perm.String()))
		return nil, missingPermission(perm)
	}
	g.decide(ctx, "require_permission", true, zap.String("permission", perm.String()))
	return eff, nil
}

// RequireAnyPermission requires at least one of perms.
func (g *Guards) RequireAnyPermission(ctx context.Context, userID, projectID string, perms ...domain.Permission) (*domain.EffectivePermissions, error) {
	eff, err := g.resolver.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !eff.IsMember() {
		g.decide(ctx, "require_any_permission", false)
		return nil, notAMember()
	}
	if !eff.Permissions.HasAny(perms...) {
		g.decide(ctx, "require_any_permission", false)
		return nil, newAuthzError(KindMissingPermission,
			fmt.Sprintf("missing one of permissions %v", perms), perms...)
	}
	g.decide(ctx, "require_any_permission", true)
	return eff, nil
}

// RequireResourcePermission is the ownership-aware check. It allows, in order:
// system admins, holders of anyPerm, and the owner when they hold ownPerm.
// A nil ownerID belongs to nobody, so only the anyPerm path can succeed.
func (g *Guards) RequireResourcePermission(ctx context.Context, userID, projectID string, ownerID *string, ownPerm, anyPerm domain.Permission) error {
	eff, err := g.resolver.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.String("own_permission", ownPerm.String()), zap.String("any_permission", anyPerm.String())}
	switch {
	case eff.IsSystemAdmin:
		g.decide(ctx, "require_resource_permission", true, fields...)
		return nil
	case eff.Permissions.Has(anyPerm):
		g.decide(ctx, "require_resource_permission", true, fields...)
		return nil
	case ownerID != nil && *ownerID == userID && eff.Permissions.Has(ownPerm):
		g.decide(ctx, "require_resource_permission", true, fields...)
		return nil
	}

	g.decide(ctx, "require_resource_permission", false, fields...)
	if !eff.IsMember() {
		return notAMember()
	}
	return newAuthzError(KindResourcePermissionDenied,
		fmt.Sprintf("requires %s, or %s on your own resource", anyPerm, ownPerm), ownPerm, anyPerm)
}

// RequireTicketPermission checks an action on a ticket created by creatorID.
// Viewing needs board.view; every other action goes through the ownership check.
func (g *Guards) RequireTicketPermission(ctx context.Context, userID, projectID string, creatorID *string, action domain.TicketAction) error {
	switch action {
	case domain.TicketView:
		_, err := g.RequirePermission(ctx, userID, projectID, domain.PermBoardView)
		return err
	case domain.TicketEdit, domain.TicketMove, domain.TicketDelete:
		return g.RequireResourcePermission(ctx, userID, projectID, creatorID,
			domain.PermTicketsManageOwn, domain.PermTicketsManageAny)
	default:
		return fmt.Errorf("unknown ticket action %q", action)
	}
}

// RequireCommentPermission lets authors edit or delete their own comments
// unconditionally. Other authors' comments need comments.manage_any.
func (g *Guards) RequireCommentPermission(ctx context.Context, userID, projectID string, authorID *string, action domain.ContentAction) error {
	return g.requireContentPermission(ctx, "require_comment_permission", userID, projectID, authorID, action, domain.PermCommentsManageAny)
}

// RequireAttachmentPermission lets uploaders edit or delete their own
// attachments unconditionally. Others' attachments need attachments.manage_any.
func (g *Guards) RequireAttachmentPermission(ctx context.Context, userID, projectID string, uploaderID *string, action domain.ContentAction) error {
	return g.requireContentPermission(ctx, "require_attachment_permission", userID, projectID, uploaderID, action, domain.PermAttachmentsManageAny)
}

func (g *Guards) requireContentPermission(ctx context.Context, check, userID, projectID string, authorID *string, action domain.ContentAction, anyPerm domain.Permission) error {
	if action != domain.ContentEdit && action != domain.ContentDelete {
		return fmt.Errorf("unknown content action %q", action)
	}

	// Authorship alone is enough; no permission lookup.
	if authorID != nil && *authorID == userID {
		g.decide(ctx, check, true, zap.String("path", "author"))
		return nil
	}

	eff, err := g.resolver.GetEffectivePermissions(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if eff.IsSystemAdmin || eff.Permissions.Has(anyPerm) {
		g.decide(ctx, check, true, zap.String("path", "manage_any"))
		return nil
	}

	g.decide(ctx, check, false)
	if !eff.IsMember() {
		return notAMember()
	}
	return newAuthzError(KindResourcePermissionDenied,
		fmt.Sprintf("requires %s to %s content created by others", anyPerm, action), anyPerm)
}

func (g *Guards) decide(ctx context.Context, check string, allowed bool, fields ...zap.Field) {
	g.recorder.RecordDecision(ctx, check, allowed)
	g.log.Debug(ctx, "authorization decision",
		append([]zap.Field{
			logger.Module("authz"),
			logger.Action(check),
			zap.Bool("allowed", allowed),
		}, fields...)...,
	)
}

func notAMember() *AuthzError {
	return newAuthzError(KindNotAProjectMember, "not a member of this project")
}
