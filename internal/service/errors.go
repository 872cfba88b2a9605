package service

import (
	"errors"
	"fmt"

	"tracker-api/internal/domain"
	"tracker-api/internal/repo"
)

// AuthzKind classifies an authorization failure. Callers branch on the kind,
// never on the message.
type AuthzKind string

const (
	KindUnauthenticated          AuthzKind = "unauthenticated"
	KindAccountDisabled          AuthzKind = "account_disabled"
	KindForbidden                AuthzKind = "forbidden"
	KindNotAProjectMember        AuthzKind = "not_a_project_member"
	KindMissingPermission        AuthzKind = "missing_permission"
	KindResourcePermissionDenied AuthzKind = "resource_permission_denied"
	KindRoleRankViolation        AuthzKind = "role_rank_violation"
)

// AuthzError is returned by guards and by management flows that refuse an action.
type AuthzError struct {
	Kind        AuthzKind
	Permissions []domain.Permission
	Message     string
}

func (e *AuthzError) Error() string {
	return e.Message
}

// Is matches any AuthzError of the same kind, so errors.Is(err, &AuthzError{Kind: k}) works.
func (e *AuthzError) Is(target error) bool {
	t, ok := target.(*AuthzError)
	return ok && t.Kind == e.Kind
}

func newAuthzError(kind AuthzKind, message string, perms ...domain.Permission) *AuthzError {
	return &AuthzError{Kind: kind, Permissions: perms, Message: message}
}

func missingPermission(perm domain.Permission) *AuthzError {
	return newAuthzError(KindMissingPermission, fmt.Sprintf("missing permission %s", perm), perm)
}

func rankViolation(message string) *AuthzError {
	return newAuthzError(KindRoleRankViolation, message)
}

// AsAuthzError extracts an AuthzError from the chain.
func AsAuthzError(err error) (*AuthzError, bool) {
	var authzErr *AuthzError
	if errors.As(err, &authzErr) {
		return authzErr, true
	}
	return nil, false
}

// IsKind reports whether err is an AuthzError of the given kind.
func IsKind(err error, kind AuthzKind) bool {
	authzErr, ok := AsAuthzError(err)
	return ok && authzErr.Kind == kind
}

var (
	ErrUserNotFound    = repo.ErrUserNotFound
	ErrProjectNotFound = repo.ErrProjectNotFound
	ErrMemberNotFound  = repo.ErrMemberNotFound
	ErrRoleNotFound    = repo.ErrRoleNotFound
	ErrAlreadyMember   = repo.ErrAlreadyMember
	ErrRoleInUse       = repo.ErrRoleInUse

	ErrDefaultRoleImmutable  = errors.New("default roles cannot be deleted")
	ErrLastOwner             = errors.New("project must keep at least one owner")
	ErrOwnerCannotLeave      = errors.New("owners cannot leave a project; transfer ownership first")
	ErrDuplicateRoleName     = errors.New("a role with this name already exists in the project")
	ErrInvalidReassignTarget = errors.New("reassignment target must be another role of the project")
	ErrInvalidPosition       = errors.New("custom roles cannot take the owner position")
	ErrProvisioningFailed    = errors.New("default roles could not be provisioned")
)
