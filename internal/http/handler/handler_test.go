package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"tracker-api/internal/auth"
	"tracker-api/internal/domain"
	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service"
	"tracker-api/internal/service/servicetest"
	"tracker-api/internal/simulation"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const testProject = "proj-1"

// testEnv mounts every handler on a chi router over an in-memory store.
// Users: owner (Owner), alice (Admin), bob and carol (Member), root (system
// admin, no membership), outsider and newbie (no membership), disabled (inactive Member).
type testEnv struct {
	store  *servicetest.Store
	sim    *simulation.MemoryStore
	router chi.Router

	owner, admin, member *domain.Role
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := servicetest.NewStore()
	log := logger.NewNop()
	presets := domain.DefaultRolePresets()

	env := &testEnv{store: store, sim: simulation.NewMemoryStore()}
	env.owner = store.SeedRole(testProject, presets[0].Name, presets[0].Position, true, presets[0].Permissions...)
	env.admin = store.SeedRole(testProject, presets[1].Name, presets[1].Position, true, presets[1].Permissions...)
	env.member = store.SeedRole(testProject, presets[2].Name, presets[2].Position, true, presets[2].Permissions...)

	for _, id := range []string{"owner", "alice", "bob", "carol", "outsider", "newbie"} {
		store.SeedUser(id, false, true)
	}
	store.SeedUser("root", true, true)
	store.SeedUser("disabled", false, false)

	store.SeedMember(testProject, "owner", env.owner)
	store.SeedMember(testProject, "alice", env.admin)
	store.SeedMember(testProject, "bob", env.member)
	store.SeedMember(testProject, "carol", env.member)
	store.SeedMember(testProject, "disabled", env.member)

	resolver := service.NewResolver(store, store, log)
	guards := service.NewGuards(resolver, store, nil, log)
	rank := service.NewRankChecker(resolver, store, store, log)
	provisioner := service.NewRoleProvisioner(store, store, log)
	members := service.NewMemberService(store, guards, rank, provisioner, store, log)

	perms := NewPermissionsHandler(guards)
	memberHandler := NewMemberHandler(members, guards)
	simHandler := NewSimulationHandler(members, guards, env.sim, simulation.NewNavigator(env.sim, log))

	r := chi.NewRouter()
	r.Get("/v1/permissions", perms.GetCatalog)
	r.Get("/v1/me", perms.GetMe)
	r.Route("/v1/projects/{projectId}", func(r chi.Router) {
		r.Get("/permissions/me", perms.GetMyPermissions)
		r.Post("/authorize", perms.Authorize)

		r.Get("/members", memberHandler.ListMembers)
		r.Post("/members", memberHandler.AddMember)
		r.Patch("/members/{userId}", memberHandler.UpdateMemberRole)
		r.Delete("/members/{userId}", memberHandler.RemoveMember)
		r.Put("/members/{userId}/overrides", memberHandler.SetOverrides)

		r.Get("/roles", memberHandler.ListRoles)
		r.Post("/roles", memberHandler.CreateRole)
		r.Post("/roles:provision", memberHandler.ProvisionRoles)
		r.Delete("/roles/{roleId}", memberHandler.DeleteRole)

		r.Get("/simulation", simHandler.GetState)
		r.Put("/simulation", simHandler.Start)
		r.Delete("/simulation", simHandler.Stop)
		r.Put("/simulation/preference", simHandler.SetPreference)
		r.Post("/simulation/navigation", simHandler.Navigate)
		r.Post("/simulation/navigation:confirm", simHandler.ConfirmNavigation)
		r.Post("/simulation/navigation:cancel", simHandler.CancelNavigation)
	})
	env.router = r
	return env
}

// do sends a request as userID; an empty userID sends it unauthenticated.
func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	ctx := logger.SetLoggerInContext(req.Context(), logger.NewNop())
	if userID != "" {
		ctx = auth.SetPrincipalForTesting(ctx, &auth.Principal{UserID: userID, Method: auth.AuthMethodJWT, Issuer: "tracker-web"})
	}
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func projectPath(suffix string) string {
	return "/v1/projects/" + testProject + suffix
}

// decodeData unwraps the success envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var env struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.True(t, env.OK, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// errorCode returns the code of an error envelope, asserting the status first.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder, status int) string {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var resp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func testCtx() context.Context {
	return logger.SetLoggerInContext(context.Background(), logger.NewNop())
}
