package service

import (
	"context"
	"sync"
	"testing"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service/servicetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvisioner(store *servicetest.Store) *RoleProvisioner {
	return NewRoleProvisioner(store, store, logger.NewNop())
}

func countDefaults(t *testing.T, store *servicetest.Store, projectID string) map[int]int {
	t.Helper()
	roles, err := store.ListRoles(context.Background(), projectID)
	require.NoError(t, err)
	counts := map[int]int{}
	for _, r := range roles {
		if r.IsDefault {
			counts[r.Position]++
		}
	}
	return counts
}

func TestCreateDefaultRolesForProject(t *testing.T) {
	store := servicetest.NewStore()
	store.Projects["p"] = true
	p := newProvisioner(store)

	ids, err := p.CreateDefaultRolesForProject(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.NotEmpty(t, ids[domain.RoleNameOwner])
	assert.NotEmpty(t, ids[domain.RoleNameAdmin])
	assert.NotEmpty(t, ids[domain.RoleNameMember])

	owner, err := store.GetRole(context.Background(), "p", ids[domain.RoleNameOwner])
	require.NoError(t, err)
	assert.True(t, owner.IsDefault)
	assert.Equal(t, domain.PositionOwner, owner.Position)
	assert.ElementsMatch(t, domain.AllPermissions(), owner.Permissions)

	admin, err := store.GetRole(context.Background(), "p", ids[domain.RoleNameAdmin])
	require.NoError(t, err)
	assert.NotContains(t, admin.Permissions, domain.PermProjectDelete)
}

func TestProvisioning_IsIdempotent(t *testing.T) {
	store := servicetest.NewStore()
	store.Projects["p"] = true
	p := newProvisioner(store)
	ctx := context.Background()

	first, err := p.CreateDefaultRolesForProject(ctx, "p")
	require.NoError(t, err)

	owner, err := p.GetOwnerRoleForProject(ctx, "p")
	require.NoError(t, err)
	member, err := p.GetMemberRoleForProject(ctx, "p")
	require.NoError(t, err)

	assert.Equal(t, first[domain.RoleNameOwner], owner.ID)
	assert.Equal(t, first[domain.RoleNameMember], member.ID)

	second, err := p.CreateDefaultRolesForProject(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, countDefaults(t, store, "p"))
}

func TestProvisioning_LazyOnMiss(t *testing.T) {
	store := servicetest.NewStore()
	store.Projects["p"] = true
	p := newProvisioner(store)

	member, err := p.GetMemberRoleForProject(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionMember, member.Position)
	assert.Equal(t, 1, store.InsertCalls)

	admin, err := p.GetAdminRoleForProject(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionAdmin, admin.Position)
	assert.Equal(t, 1, store.InsertCalls, "second lookup must hit existing rows")
}

func TestProvisioning_ConcurrentLookupsCreateOneSet(t *testing.T) {
	store := servicetest.NewStore()
	store.Projects["p"] = true
	p := newProvisioner(store)

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role, err := p.GetOwnerRoleForProject(context.Background(), "p")
			if assert.NoError(t, err) {
				ids[i] = role.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, countDefaults(t, store, "p"))
}

func TestProvisioning_RenamedDefaultsResolveByPosition(t *testing.T) {
	store := servicetest.NewStore()
	store.Projects["p"] = true
	name := "Maintainer"
	store.Settings = domain.RoleSettings{
		Defaults: map[int]domain.RoleOverride{
			domain.PositionAdmin: {Name: &name, Permissions: []string{"board.view", "bogus.perm"}},
		},
	}
	p := newProvisioner(store)

	ids, err := p.CreateDefaultRolesForProject(context.Background(), "p")
	require.NoError(t, err)
	assert.Contains(t, ids, "Maintainer")
	assert.NotContains(t, ids, domain.RoleNameAdmin)

	admin, err := p.GetAdminRoleForProject(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "Maintainer", admin.Name)
	assert.Equal(t, []domain.Permission{domain.PermBoardView}, admin.Permissions)
}

func TestProvisioning_ExtraRoles(t *testing.T) {
	store := servicetest.NewStore()
	store.Projects["p"] = true
	store.Settings = domain.RoleSettings{
		ExtraRoles: []domain.RolePreset{
			{Name: "Reviewer", Color: "#10b981", Permissions: []domain.Permission{domain.PermBoardView, "nope"}, Position: 0},
			{Name: "  ", Position: 7},
			{Name: "member", Position: 8},
			{Name: "Guest", Position: 9},
		},
	}
	p := newProvisioner(store)
	ctx := context.Background()

	ids, err := p.CreateDefaultRolesForProject(ctx, "p")
	require.NoError(t, err)
	require.Contains(t, ids, "Reviewer")
	require.Contains(t, ids, "Guest")

	reviewer, err := store.GetRole(ctx, "p", ids["Reviewer"])
	require.NoError(t, err)
	assert.False(t, reviewer.IsDefault)
	assert.Greater(t, reviewer.Position, domain.PositionMember, "extras never outrank the member role")
	assert.Equal(t, []domain.Permission{domain.PermBoardView}, reviewer.Permissions)

	guest, err := store.GetRole(ctx, "p", ids["Guest"])
	require.NoError(t, err)
	assert.Equal(t, 9, guest.Position)

	roles, err := store.ListRoles(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, roles, 5, "blank and duplicate extras are skipped")

	// A second call must not duplicate extras.
	_, err = p.CreateDefaultRolesForProject(ctx, "p")
	require.NoError(t, err)
	roles, err = store.ListRoles(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, roles, 5)
}

func TestProvisioning_Errors(t *testing.T) {
	store := servicetest.NewStore()
	p := newProvisioner(store)

	_, err := p.GetOwnerRoleForProject(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)

	store.Projects["p"] = true
	store.SettingsErr = errStoreDown
	_, err = p.CreateDefaultRolesForProject(context.Background(), "p")
	assert.ErrorIs(t, err, errStoreDown)
}
