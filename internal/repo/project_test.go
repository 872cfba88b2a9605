package repo_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"tracker-api/internal/auth"
	"tracker-api/internal/database"
	"tracker-api/internal/domain"
	"tracker-api/internal/repo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests run against a migrated database.
//
// Run with: DATABASE_URL=postgres://... go test -v ./internal/repo -run Integration
func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	require.NoError(t, database.RunMigrations(databaseURL))

	pool, err := database.NewPool(context.Background(), databaseURL, database.PoolOptions{})
	require.NoError(t, err, "failed to connect to database")
	t.Cleanup(pool.Close)
	return pool
}

func seedProject(t *testing.T, pool *pgxpool.Pool, userIDs ...string) string {
	t.Helper()
	ctx := context.Background()

	projectID := "it-" + uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO projects (id, name) VALUES ($1, 'integration')`, projectID)
	require.NoError(t, err)

	for _, id := range userIDs {
		_, err := pool.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT DO NOTHING`, id)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
		for _, id := range userIDs {
			_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		}
	})
	return projectID
}

func TestProjectRepository_ConcurrentProvisioning_Integration(t *testing.T) {
	pool := integrationPool(t)
	projectRepo := repo.NewProjectRepository(pool)
	projectID := seedProject(t, pool)
	ctx := context.Background()

	extras := []domain.RolePreset{{Name: "Guest", Color: "#94a3b8", Permissions: []domain.Permission{domain.PermProjectView}, Position: 5}}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		seeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := projectRepo.InsertDefaultRoles(ctx, projectID, domain.DefaultRolePresets(), extras)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				seeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, seeded, "exactly one caller seeds the project")

	roles, err := projectRepo.ListRoles(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, roles, 4)
	assert.Equal(t, domain.RoleNameOwner, roles[0].Name)
	assert.True(t, roles[0].IsDefault)
	assert.Equal(t, "Guest", roles[3].Name)
	assert.False(t, roles[3].IsDefault)

	member, err := projectRepo.GetDefaultRoleByPosition(ctx, projectID, domain.PositionMember)
	require.NoError(t, err)
	assert.ElementsMatch(t, domain.DefaultRolePresets()[2].Permissions, member.Permissions)
}

func TestProjectRepository_ProvisionUnknownProject_Integration(t *testing.T) {
	pool := integrationPool(t)
	projectRepo := repo.NewProjectRepository(pool)

	_, err := projectRepo.InsertDefaultRoles(context.Background(), "missing-"+uuid.NewString(), domain.DefaultRolePresets(), nil)
	assert.ErrorIs(t, err, repo.ErrProjectNotFound)
}

func TestProjectRepository_Membership_Integration(t *testing.T) {
	pool := integrationPool(t)
	projectRepo := repo.NewProjectRepository(pool)
	ctx := context.Background()

	owner, member := "it-owner-"+uuid.NewString(), "it-member-"+uuid.NewString()
	projectID := seedProject(t, pool, owner, member)

	_, err := projectRepo.InsertDefaultRoles(ctx, projectID, domain.DefaultRolePresets(), nil)
	require.NoError(t, err)
	ownerRole, err := projectRepo.GetDefaultRoleByPosition(ctx, projectID, domain.PositionOwner)
	require.NoError(t, err)
	memberRole, err := projectRepo.GetDefaultRoleByPosition(ctx, projectID, domain.PositionMember)
	require.NoError(t, err)

	require.NoError(t, projectRepo.AddMember(ctx, projectID, owner, ownerRole.ID))
	require.NoError(t, projectRepo.AddMember(ctx, projectID, member, memberRole.ID))
	assert.ErrorIs(t, projectRepo.AddMember(ctx, projectID, member, memberRole.ID), repo.ErrAlreadyMember)
	assert.ErrorIs(t, projectRepo.AddMember(ctx, projectID, "ghost-user", memberRole.ID), repo.ErrUserNotFound)

	require.NoError(t, projectRepo.SetOverrides(ctx, projectID, member, []domain.Permission{domain.PermTicketsManageAny}))

	m, err := projectRepo.GetMembership(ctx, member, projectID)
	require.NoError(t, err)
	assert.Equal(t, memberRole.ID, m.RoleID)
	require.NotNil(t, m.Role)
	assert.Equal(t, domain.PositionMember, m.Role.Position)
	assert.Equal(t, []domain.Permission{domain.PermTicketsManageAny}, m.Overrides)

	// Legacy rows store the list as a JSON string.
	_, err = pool.Exec(ctx, `UPDATE project_members SET overrides = to_jsonb('["tickets.create","bogus.perm"]'::text) WHERE project_id = $1 AND user_id = $2`, projectID, member)
	require.NoError(t, err)
	m, err = projectRepo.GetMembership(ctx, member, projectID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{domain.PermTicketsCreate}, m.Overrides)

	members, err := projectRepo.ListMembers(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, owner, members[0].UserID)

	count, err := projectRepo.CountMembersWithRole(ctx, projectID, ownerRole.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = projectRepo.DeleteRole(ctx, projectID, memberRole.ID, nil)
	assert.ErrorIs(t, err, repo.ErrRoleInUse)

	require.NoError(t, projectRepo.RemoveMember(ctx, projectID, member))
	assert.ErrorIs(t, projectRepo.RemoveMember(ctx, projectID, member), repo.ErrMemberNotFound)

	_, err = projectRepo.GetMembership(ctx, member, projectID)
	assert.ErrorIs(t, err, repo.ErrMemberNotFound)
}

func TestUserRepository_APIKey_Integration(t *testing.T) {
	pool := integrationPool(t)
	userRepo := repo.NewUserRepository(pool)
	ctx := context.Background()

	userID := "it-svc-" + uuid.NewString()
	seedProject(t, pool, userID)

	raw := "tk_live_" + uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, user_id, key_hash) VALUES ($1, $2, $3)`, uuid.NewString(), userID, auth.HashAPIKey(raw))
	require.NoError(t, err)

	rec, found, err := userRepo.LookupAPIKey(ctx, auth.HashAPIKey(raw))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, userID, rec.UserID)

	_, found, err = userRepo.LookupAPIKey(ctx, auth.HashAPIKey("unknown"))
	require.NoError(t, err)
	assert.False(t, found)

	u, err := userRepo.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsSystemAdmin)

	_, err = userRepo.GetUser(ctx, "nobody-"+uuid.NewString())
	assert.ErrorIs(t, err, repo.ErrUserNotFound)
}
