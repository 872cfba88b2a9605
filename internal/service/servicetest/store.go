// Package servicetest provides an in-memory store for tests of the service
// layer and of the HTTP handlers built on it.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"tracker-api/internal/domain"
	"tracker-api/internal/repo"

	"github.com/google/uuid"
)

// Store is an in-memory stand-in for the user, project, settings and audit
// repositories. It returns the same sentinel errors as the Postgres versions.
type Store struct {
	mu sync.Mutex

	Users       map[string]*domain.User
	Roles       map[string]*domain.Role
	Members     map[string]map[string]*domain.ProjectMembership
	Projects    map[string]bool
	Settings    domain.RoleSettings
	SettingsErr error
	StoreErr    error

	GetUserCalls       int
	GetMembershipCalls int
	InsertCalls        int
	Audit              []repo.AuditEntry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Users:    map[string]*domain.User{},
		Roles:    map[string]*domain.Role{},
		Members:  map[string]map[string]*domain.ProjectMembership{},
		Projects: map[string]bool{},
	}
}

// SeedUser adds an account.
func (f *Store) SeedUser(id string, admin, active bool) {
	f.Users[id] = &domain.User{ID: id, IsSystemAdmin: admin, IsActive: active}
}

// SeedRole adds a role and marks the project as existing.
func (f *Store) SeedRole(projectID, name string, position int, isDefault bool, perms ...domain.Permission) *domain.Role {
	f.Projects[projectID] = true
	r := &domain.Role{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Name:        name,
		Permissions: perms,
		IsDefault:   isDefault,
		Position:    position,
		CreatedAt:   time.Now(),
	}
	f.Roles[r.ID] = r
	return r
}

// SeedMember adds a membership.
func (f *Store) SeedMember(projectID, userID string, role *domain.Role, overrides ...domain.Permission) {
	if f.Members[projectID] == nil {
		f.Members[projectID] = map[string]*domain.ProjectMembership{}
	}
	if overrides == nil {
		overrides = []domain.Permission{}
	}
	f.Members[projectID][userID] = &domain.ProjectMembership{
		UserID:    userID,
		ProjectID: projectID,
		RoleID:    role.ID,
		Overrides: overrides,
	}
}

func (f *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetUserCalls++
	if f.StoreErr != nil {
		return nil, f.StoreErr
	}
	u, ok := f.Users[userID]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *Store) GetMembership(ctx context.Context, userID, projectID string) (*domain.ProjectMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetMembershipCalls++
	if f.StoreErr != nil {
		return nil, f.StoreErr
	}
	m, ok := f.Members[projectID][userID]
	if !ok {
		return nil, repo.ErrMemberNotFound
	}
	cp := *m
	if r, ok := f.Roles[m.RoleID]; ok {
		rc := *r
		cp.Role = &rc
	}
	return &cp, nil
}

func (f *Store) GetRole(ctx context.Context, projectID, roleID string) (*domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Roles[roleID]
	if !ok || r.ProjectID != projectID {
		return nil, repo.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *Store) GetDefaultRoleByPosition(ctx context.Context, projectID string, position int) (*domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.Roles {
		if r.ProjectID == projectID && r.IsDefault && r.Position == position {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repo.ErrRoleNotFound
}

func (f *Store) ListRoles(ctx context.Context, projectID string) ([]domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Role{}
	for _, r := range f.Roles {
		if r.ProjectID == projectID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// InsertDefaultRoles mirrors the partial unique index on (project_id, position) WHERE is_default.
func (f *Store) InsertDefaultRoles(ctx context.Context, projectID string, defaults, extras []domain.RolePreset) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InsertCalls++
	if !f.Projects[projectID] {
		return false, repo.ErrProjectNotFound
	}

	taken := map[int]bool{}
	for _, r := range f.Roles {
		if r.ProjectID == projectID && r.IsDefault {
			taken[r.Position] = true
		}
	}

	seeded := false
	for _, p := range defaults {
		if taken[p.Position] {
			continue
		}
		r := &domain.Role{ID: uuid.NewString(), ProjectID: projectID, Name: p.Name, Color: p.Color,
			Permissions: p.Permissions, IsDefault: true, Position: p.Position}
		f.Roles[r.ID] = r
		if p.Position == domain.PositionOwner {
			seeded = true
		}
	}
	if seeded {
		for _, p := range extras {
			r := &domain.Role{ID: uuid.NewString(), ProjectID: projectID, Name: p.Name, Color: p.Color,
				Permissions: p.Permissions, IsDefault: false, Position: p.Position}
			f.Roles[r.ID] = r
		}
	}
	return seeded, nil
}

// ProjectExists reports whether the project was seeded.
func (f *Store) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StoreErr != nil {
		return false, f.StoreErr
	}
	return f.Projects[projectID], nil
}

// ListProjectIDs returns the seeded projects sorted by id.
func (f *Store) ListProjectIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StoreErr != nil {
		return nil, f.StoreErr
	}
	ids := make([]string, 0, len(f.Projects))
	for id := range f.Projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *Store) GetRoleSettings(ctx context.Context) (domain.RoleSettings, error) {
	return f.Settings, f.SettingsErr
}

func (f *Store) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ProjectMembership{}
	for _, m := range f.Members[projectID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *Store) CountMembersWithRole(ctx context.Context, projectID, roleID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.Members[projectID] {
		if m.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (f *Store) AddMember(ctx context.Context, projectID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Users[userID]; !ok {
		return repo.ErrUserNotFound
	}
	if r, ok := f.Roles[roleID]; !ok || r.ProjectID != projectID {
		return repo.ErrRoleNotFound
	}
	if _, ok := f.Members[projectID][userID]; ok {
		return repo.ErrAlreadyMember
	}
	if f.Members[projectID] == nil {
		f.Members[projectID] = map[string]*domain.ProjectMembership{}
	}
	f.Members[projectID][userID] = &domain.ProjectMembership{UserID: userID, ProjectID: projectID, RoleID: roleID, Overrides: []domain.Permission{}}
	return nil
}

func (f *Store) UpdateMemberRole(ctx context.Context, projectID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Members[projectID][userID]
	if !ok {
		return repo.ErrMemberNotFound
	}
	m.RoleID = roleID
	return nil
}

func (f *Store) SetOverrides(ctx context.Context, projectID, userID string, perms []domain.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Members[projectID][userID]
	if !ok {
		return repo.ErrMemberNotFound
	}
	m.Overrides = perms
	return nil
}

func (f *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Members[projectID][userID]; !ok {
		return repo.ErrMemberNotFound
	}
	delete(f.Members[projectID], userID)
	return nil
}

func (f *Store) CreateRole(ctx context.Context, role *domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	cp := *role
	f.Roles[role.ID] = &cp
	return nil
}

func (f *Store) DeleteRole(ctx context.Context, projectID, roleID string, reassignTo *string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.Members[projectID] {
		if m.RoleID != roleID {
			continue
		}
		if reassignTo == nil {
			return 0, repo.ErrRoleInUse
		}
		m.RoleID = *reassignTo
		n++
	}
	if _, ok := f.Roles[roleID]; !ok {
		return 0, repo.ErrRoleNotFound
	}
	delete(f.Roles, roleID)
	return n, nil
}

func (f *Store) LogAction(ctx context.Context, entry repo.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Audit = append(f.Audit, entry)
	return nil
}

// ResetCalls zeroes the lookup counters.
func (f *Store) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetUserCalls = 0
	f.GetMembershipCalls = 0
}
