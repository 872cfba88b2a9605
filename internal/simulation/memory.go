package simulation

import (
	"context"
	"sync"
	"time"

	"tracker-api/internal/domain"
)

type viewerState struct {
	simulations map[string]domain.SimulatedRole
	pending     *domain.PendingNavigation
	preference  domain.NavigationPreference
}

// MemoryStore keeps simulation state in process. State is lost on restart,
// which matches the tab-local lifetime of a simulation.
type MemoryStore struct {
	mu      sync.RWMutex
	viewers map[string]*viewerState
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{viewers: map[string]*viewerState{}, now: time.Now}
}

func (s *MemoryStore) state(viewerID string) *viewerState {
	st, ok := s.viewers[viewerID]
	if !ok {
		st = &viewerState{simulations: map[string]domain.SimulatedRole{}}
		s.viewers[viewerID] = st
	}
	return st
}

func (s *MemoryStore) Start(ctx context.Context, viewerID, projectID string, role domain.RoleSummary, perms []domain.Permission) (*domain.SimulatedRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sim := domain.SimulatedRole{
		ProjectID:   projectID,
		Role:        role,
		Permissions: copyPermissions(perms),
		StartedAt:   s.now().UTC(),
	}
	s.state(viewerID).simulations[projectID] = sim
	return &sim, nil
}

func (s *MemoryStore) Stop(ctx context.Context, viewerID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(viewerID)
	delete(st.simulations, projectID)
	if st.pending != nil && st.pending.ProjectID == projectID {
		st.pending = nil
	}
	return nil
}

func (s *MemoryStore) StopAll(ctx context.Context, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(viewerID)
	st.simulations = map[string]domain.SimulatedRole{}
	st.pending = nil
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, viewerID, projectID string) (*domain.SimulatedRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.viewers[viewerID]
	if !ok {
		return nil, nil
	}
	sim, ok := st.simulations[projectID]
	if !ok {
		return nil, nil
	}
	sim.Permissions = copyPermissions(sim.Permissions)
	return &sim, nil
}

func (s *MemoryStore) IsSimulating(ctx context.Context, viewerID, projectID string) (bool, error) {
	sim, err := s.Get(ctx, viewerID, projectID)
	return sim != nil, err
}

func (s *MemoryStore) PendingNavigation(ctx context.Context, viewerID string) (*domain.PendingNavigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.viewers[viewerID]
	if !ok || st.pending == nil {
		return nil, nil
	}
	p := *st.pending
	return &p, nil
}

func (s *MemoryStore) SetPendingNavigation(ctx context.Context, viewerID string, pending domain.PendingNavigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state(viewerID).pending = &pending
	return nil
}

func (s *MemoryStore) ClearPendingNavigation(ctx context.Context, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state(viewerID).pending = nil
	return nil
}

func (s *MemoryStore) Preference(ctx context.Context, viewerID string) (domain.NavigationPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.viewers[viewerID]; ok && st.preference.IsValid() {
		return st.preference, nil
	}
	return domain.NavigationConfirm, nil
}

func (s *MemoryStore) SetPreference(ctx context.Context, viewerID string, pref domain.NavigationPreference) error {
	if !pref.IsValid() {
		return ErrInvalidPreference
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state(viewerID).preference = pref
	return nil
}
