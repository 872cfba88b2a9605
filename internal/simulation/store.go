// Package simulation keeps the "viewing as" overlay a viewer uses to preview
// a project with another role's permissions. The overlay only drives what the
// UI renders. Authorization never reads it.
package simulation

import (
	"context"
	"errors"
	"strings"

	"tracker-api/internal/domain"
)

var (
	// ErrNoPendingNavigation is returned when there is no intercepted navigation to resolve.
	ErrNoPendingNavigation = errors.New("no pending navigation")

	// ErrNotEligible is returned when the viewer may not simulate the requested role.
	ErrNotEligible = errors.New("role cannot be simulated by this viewer")

	// ErrInvalidPreference is returned for an unknown navigation preference.
	ErrInvalidPreference = errors.New("invalid navigation preference")
)

// Store persists simulation state per viewer.
type Store interface {
	// Start begins or replaces the simulation of one project.
	Start(ctx context.Context, viewerID, projectID string, role domain.RoleSummary, perms []domain.Permission) (*domain.SimulatedRole, error)
	Stop(ctx context.Context, viewerID, projectID string) error
	StopAll(ctx context.Context, viewerID string) error

	// Get returns nil when the project is not simulated.
	Get(ctx context.Context, viewerID, projectID string) (*domain.SimulatedRole, error)
	IsSimulating(ctx context.Context, viewerID, projectID string) (bool, error)

	PendingNavigation(ctx context.Context, viewerID string) (*domain.PendingNavigation, error)
	SetPendingNavigation(ctx context.Context, viewerID string, pending domain.PendingNavigation) error
	ClearPendingNavigation(ctx context.Context, viewerID string) error

	// Preference defaults to NavigationConfirm when never set.
	Preference(ctx context.Context, viewerID string) (domain.NavigationPreference, error)
	SetPreference(ctx context.Context, viewerID string, pref domain.NavigationPreference) error
}

// Eligible reports whether a viewer with the given effective permissions may
// view the project as target. System admins may simulate any role. Otherwise
// the viewer needs members.manage and a strictly higher rank than the target;
// the top rank may also simulate its own position.
func Eligible(viewer *domain.EffectivePermissions, target *domain.Role) bool {
	if viewer == nil || target == nil {
		return false
	}
	if viewer.IsSystemAdmin {
		return true
	}
	if !viewer.Permissions.Has(domain.PermMembersManage) {
		return false
	}
	if viewer.Membership == nil || viewer.Membership.Role == nil {
		return false
	}

	own := viewer.Membership.Role.Position
	if own == domain.PositionOwner {
		return target.Position >= own
	}
	return target.Position > own
}

// InProjectScope reports whether an in-app path stays inside the project's routes.
func InProjectScope(projectID, path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	prefix := "/projects/" + projectID
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func copyPermissions(perms []domain.Permission) []domain.Permission {
	out := make([]domain.Permission, len(perms))
	copy(out, perms)
	return out
}
