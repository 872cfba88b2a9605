package service

import (
	"context"
	"fmt"
	"testing"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service/servicetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRankStore(actorPos, targetPos int, actorPerms ...domain.Permission) (*servicetest.Store, *RankChecker) {
	store := servicetest.NewStore()
	store.SeedUser("actor", false, true)
	store.SeedUser("target", false, true)
	actorRole := store.SeedRole("p", "A", actorPos, false, actorPerms...)
	targetRole := store.SeedRole("p", "T", targetPos, false)
	store.SeedMember("p", "actor", actorRole)
	store.SeedMember("p", "target", targetRole)
	return store, NewRankChecker(NewResolver(store, store, logger.NewNop()), store, store, logger.NewNop())
}

func TestCanManageMember_RankStrictness(t *testing.T) {
	for actorPos := 0; actorPos <= 4; actorPos++ {
		for targetPos := 0; targetPos <= 4; targetPos++ {
			t.Run(fmt.Sprintf("actor=%d target=%d", actorPos, targetPos), func(t *testing.T) {
				_, rank := newRankStore(actorPos, targetPos, domain.PermMembersManage)

				ok, err := rank.CanManageMember(context.Background(), "actor", "target", "p")
				require.NoError(t, err)
				assert.Equal(t, actorPos < targetPos, ok)
			})
		}
	}
}

func TestCanManageMember_RequiresPermission(t *testing.T) {
	_, rank := newRankStore(0, 5, domain.PermMembersView)

	ok, err := rank.CanManageMember(context.Background(), "actor", "target", "p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanManageMember_AdminCannotManageOwner(t *testing.T) {
	fx := newFixture()

	ok, err := fx.rank.CanManageMember(context.Background(), "alice", "owner", testProject)
	require.NoError(t, err)
	assert.False(t, ok, "admin (position 1) must not manage owner (position 0)")

	ok, err = fx.rank.CanManageMember(context.Background(), "alice", "bob", testProject)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanManageMember_FailsClosed(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  string
		target string
	}{
		{"self management", "owner", "owner"},
		{"target not a member", "owner", "outsider"},
		{"actor not a member", "outsider", "bob"},
		{"unknown target", "owner", "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := fx.rank.CanManageMember(ctx, tt.actor, tt.target, testProject)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	// Membership pointing at a role that no longer exists.
	fx.store.Members[testProject]["carol"].RoleID = "dangling"
	ok, err := fx.rank.CanManageMember(ctx, "owner", "carol", testProject)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanManageMember_SystemAdmin(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	ok, err := fx.rank.CanManageMember(ctx, "root", "owner", testProject)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fx.rank.CanManageMember(ctx, "root", "root", testProject)
	require.NoError(t, err)
	assert.False(t, ok, "self management is never allowed")
}

func TestCanRemoveMember_UsesRemovePermission(t *testing.T) {
	_, rank := newRankStore(1, 2, domain.PermMembersRemove)
	ok, err := rank.CanRemoveMember(context.Background(), "actor", "target", "p")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rank.CanManageMember(context.Background(), "actor", "target", "p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanAssignRole(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   string
		roleID  string
		allowed bool
	}{
		{"owner assigns admin", "owner", fx.admin.ID, true},
		{"owner cannot assign owner", "owner", fx.owner.ID, false},
		{"admin assigns member", "alice", fx.member.ID, true},
		{"admin cannot assign admin", "alice", fx.admin.ID, false},
		{"admin cannot assign owner", "alice", fx.owner.ID, false},
		{"member lacks permission", "bob", fx.member.ID, false},
		{"unknown role", "owner", "missing", false},
		{"system admin assigns owner", "root", fx.owner.ID, true},
		{"outsider", "outsider", fx.member.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := fx.rank.CanAssignRole(ctx, tt.actor, testProject, tt.roleID)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, ok)
		})
	}
}

func TestRankChecker_StoreError(t *testing.T) {
	fx := newFixture()
	fx.store.StoreErr = errStoreDown

	_, err := fx.rank.CanManageMember(context.Background(), "owner", "bob", testProject)
	assert.ErrorIs(t, err, errStoreDown)

	_, err = fx.rank.CanAssignRole(context.Background(), "owner", testProject, fx.member.ID)
	assert.ErrorIs(t, err, errStoreDown)
}
