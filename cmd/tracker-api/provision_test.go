package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/repo"
	"tracker-api/internal/service"
	"tracker-api/internal/service/servicetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provisionFixture() (*servicetest.Store, *service.RoleProvisioner) {
	store := servicetest.NewStore()
	store.Projects["proj-a"] = true
	store.Projects["proj-b"] = true
	return store, service.NewRoleProvisioner(store, store, logger.NewNop())
}

func rolesIn(store *servicetest.Store, projectID string) int {
	n := 0
	for _, r := range store.Roles {
		if r.ProjectID == projectID {
			n++
		}
	}
	return n
}

func TestProvisionProjects_All(t *testing.T) {
	store, prov := provisionFixture()
	var out bytes.Buffer

	err := provisionProjects(context.Background(), logger.NewNop(), store, prov, nil, &out)
	require.NoError(t, err)

	presets := len(domain.DefaultRolePresets())
	assert.Equal(t, presets, rolesIn(store, "proj-a"))
	assert.Equal(t, presets, rolesIn(store, "proj-b"))
	assert.Equal(t, "proj-a: 3 roles\nproj-b: 3 roles\nProvisioned 2 project(s)\n", out.String())
}

func TestProvisionProjects_Rerun(t *testing.T) {
	store, prov := provisionFixture()
	ctx := context.Background()

	require.NoError(t, provisionProjects(ctx, logger.NewNop(), store, prov, []string{"proj-a"}, &bytes.Buffer{}))
	require.NoError(t, provisionProjects(ctx, logger.NewNop(), store, prov, []string{"proj-a"}, &bytes.Buffer{}))

	assert.Equal(t, len(domain.DefaultRolePresets()), rolesIn(store, "proj-a"))
	assert.Zero(t, rolesIn(store, "proj-b"))
}

func TestProvisionProjects_UnknownProject(t *testing.T) {
	store, prov := provisionFixture()
	var out bytes.Buffer

	err := provisionProjects(context.Background(), logger.NewNop(), store, prov, []string{"proj-a", "ghost"}, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repo.ErrProjectNotFound))
	assert.Contains(t, err.Error(), "ghost")
	assert.Empty(t, out.String())
	assert.Zero(t, rolesIn(store, "proj-a"))
}

func TestProvisionProjects_StoreError(t *testing.T) {
	store, prov := provisionFixture()
	store.StoreErr = errors.New("connection reset")

	err := provisionProjects(context.Background(), logger.NewNop(), store, prov, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "connection reset")
}
