package service

import (
	"context"
	"errors"
	"sync"

	"tracker-api/internal/auth"
	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service/servicetest"
)

type recordedDecision struct {
	check   string
	allowed bool
}

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []recordedDecision
}

func (r *fakeRecorder) RecordDecision(ctx context.Context, check string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, recordedDecision{check, allowed})
}

var errStoreDown = errors.New("connection refused")

// fixture wires every service component over one servicetest.Store.
type fixture struct {
	store       *servicetest.Store
	recorder    *fakeRecorder
	resolver    *Resolver
	guards      *Guards
	rank        *RankChecker
	provisioner *RoleProvisioner
	members     *MemberService

	owner, admin, member *domain.Role
}

const testProject = "proj-1"

// newFixture seeds a project with the three default roles and these users:
// owner (Owner), alice (Admin), bob and carol (Member), root (system admin,
// no membership), outsider (no membership), disabled (inactive Member).
func newFixture() *fixture {
	store := servicetest.NewStore()
	log := logger.NewNop()
	presets := domain.DefaultRolePresets()

	fx := &fixture{store: store, recorder: &fakeRecorder{}}
	fx.owner = store.SeedRole(testProject, presets[0].Name, presets[0].Position, true, presets[0].Permissions...)
	fx.admin = store.SeedRole(testProject, presets[1].Name, presets[1].Position, true, presets[1].Permissions...)
	fx.member = store.SeedRole(testProject, presets[2].Name, presets[2].Position, true, presets[2].Permissions...)

	for _, id := range []string{"owner", "alice", "bob", "carol", "outsider", "newbie"} {
		store.SeedUser(id, false, true)
	}
	store.SeedUser("root", true, true)
	store.SeedUser("disabled", false, false)

	store.SeedMember(testProject, "owner", fx.owner)
	store.SeedMember(testProject, "alice", fx.admin)
	store.SeedMember(testProject, "bob", fx.member)
	store.SeedMember(testProject, "carol", fx.member)
	store.SeedMember(testProject, "disabled", fx.member)

	fx.resolver = NewResolver(store, store, log)
	fx.guards = NewGuards(fx.resolver, store, fx.recorder, log)
	fx.rank = NewRankChecker(fx.resolver, store, store, log)
	fx.provisioner = NewRoleProvisioner(store, store, log)
	fx.members = NewMemberService(store, fx.guards, fx.rank, fx.provisioner, store, log)
	return fx
}

func ctxAs(userID string) context.Context {
	ctx := logger.SetLoggerInContext(context.Background(), logger.NewNop())
	return auth.SetPrincipalForTesting(ctx, &auth.Principal{UserID: userID, Method: auth.AuthMethodJWT})
}

func strPtr(s string) *string { return &s }
