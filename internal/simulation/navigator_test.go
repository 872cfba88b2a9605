package simulation

import (
	"context"
	"testing"
	"time"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNavigator(t *testing.T) (*Navigator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	nav := NewNavigator(store, logger.NewNop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nav.now = func() time.Time { return fixed }
	return nav, store
}

func TestIntercept_WithoutSimulationAllows(t *testing.T) {
	nav, _ := newNavigator(t)

	decision, err := nav.Intercept(context.Background(), "viewer", "p1", "/settings")
	require.NoError(t, err)
	assert.Equal(t, domain.NavigationAllowed, decision.Outcome)
}

func TestIntercept_InsideProjectAllows(t *testing.T) {
	nav, store := newNavigator(t)
	ctx := context.Background()
	_, err := store.Start(ctx, "viewer", "p1", memberRole, nil)
	require.NoError(t, err)

	for _, path := range []string{"/projects/p1", "/projects/p1/board", "/projects/p1/tickets/42?tab=comments"} {
		decision, err := nav.Intercept(ctx, "viewer", "p1", path)
		require.NoError(t, err)
		assert.Equal(t, domain.NavigationAllowed, decision.Outcome, path)
	}
}

func TestIntercept_ConfirmFlow(t *testing.T) {
	nav, store := newNavigator(t)
	ctx := context.Background()
	_, err := store.Start(ctx, "viewer", "p1", memberRole, nil)
	require.NoError(t, err)

	decision, err := nav.Intercept(ctx, "viewer", "p1", "/projects/p10/board")
	require.NoError(t, err)
	assert.Equal(t, domain.NavigationNeedConfirm, decision.Outcome)
	require.NotNil(t, decision.Pending)
	assert.Equal(t, "/projects/p10/board", decision.Pending.TargetPath)

	state, err := nav.State(ctx, "viewer", "p1")
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.NotNil(t, state.Pending)

	require.NoError(t, nav.CancelPending(ctx, "viewer"))
	active, err := store.IsSimulating(ctx, "viewer", "p1")
	require.NoError(t, err)
	assert.True(t, active, "cancel keeps simulating")

	_, err = nav.Intercept(ctx, "viewer", "p1", "/dashboard")
	require.NoError(t, err)

	pending, err := nav.ConfirmPending(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", pending.TargetPath)

	active, err = store.IsSimulating(ctx, "viewer", "p1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = nav.ConfirmPending(ctx, "viewer")
	assert.ErrorIs(t, err, ErrNoPendingNavigation)
	assert.ErrorIs(t, nav.CancelPending(ctx, "viewer"), ErrNoPendingNavigation)
}

func TestIntercept_AutoStop(t *testing.T) {
	nav, store := newNavigator(t)
	ctx := context.Background()
	_, err := store.Start(ctx, "viewer", "p1", memberRole, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetPreference(ctx, "viewer", domain.NavigationAutoStop))

	decision, err := nav.Intercept(ctx, "viewer", "p1", "/projects/p2")
	require.NoError(t, err)
	assert.Equal(t, domain.NavigationAutoStopped, decision.Outcome)
	assert.Nil(t, decision.Pending)

	active, err := store.IsSimulating(ctx, "viewer", "p1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestState_IgnoresPendingOfOtherProject(t *testing.T) {
	nav, store := newNavigator(t)
	ctx := context.Background()
	require.NoError(t, store.SetPendingNavigation(ctx, "viewer", domain.PendingNavigation{ProjectID: "p1", TargetPath: "/"}))

	state, err := nav.State(ctx, "viewer", "p2")
	require.NoError(t, err)
	assert.False(t, state.Active)
	assert.Nil(t, state.Pending)
	assert.Equal(t, domain.NavigationConfirm, state.Preference)
}

func TestInProjectScope(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/projects/p1", true},
		{"/projects/p1/", true},
		{"/projects/p1/board#col-2", true},
		{"/projects/p10", false},
		{"/projects/p1x/board", false},
		{"/projects", false},
		{"/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InProjectScope("p1", tt.path), tt.path)
	}
}

func TestEligible(t *testing.T) {
	role := func(pos int) *domain.Role { return &domain.Role{ID: "r", Position: pos} }
	viewer := func(pos int, perms ...domain.Permission) *domain.EffectivePermissions {
		return &domain.EffectivePermissions{
			Permissions: domain.NewPermissionSet(perms...),
			Membership:  &domain.ProjectMembership{Role: role(pos)},
		}
	}
	admin := &domain.EffectivePermissions{Permissions: domain.FullPermissionSet(), IsSystemAdmin: true}

	tests := []struct {
		name   string
		viewer *domain.EffectivePermissions
		target *domain.Role
		want   bool
	}{
		{"system admin any role", admin, role(0), true},
		{"owner simulates owner", viewer(0, domain.PermMembersManage), role(0), true},
		{"owner simulates member", viewer(0, domain.PermMembersManage), role(2), true},
		{"admin simulates member", viewer(1, domain.PermMembersManage), role(2), true},
		{"admin cannot simulate admin", viewer(1, domain.PermMembersManage), role(1), false},
		{"admin cannot simulate owner", viewer(1, domain.PermMembersManage), role(0), false},
		{"no manage permission", viewer(0, domain.PermMembersView), role(2), false},
		{"non member", &domain.EffectivePermissions{Permissions: domain.NewPermissionSet(domain.PermMembersManage)}, role(2), false},
		{"nil viewer", nil, role(2), false},
		{"nil target", viewer(0, domain.PermMembersManage), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.viewer, tt.target))
		})
	}
}
