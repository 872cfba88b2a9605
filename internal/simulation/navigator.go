package simulation

import (
	"context"
	"time"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"

	"go.uber.org/zap"
)

// Navigator decides what happens when a simulating viewer navigates.
type Navigator struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewNavigator(store Store, log *logger.Logger) *Navigator {
	return &Navigator{store: store, log: log, now: time.Now}
}

// Intercept handles an attempt to navigate from fromProjectID to targetPath.
// Paths inside the project, or navigation without an active simulation, are
// allowed. Leaving the project either stops the simulation or records a
// pending navigation for the viewer to confirm, per their preference.
func (n *Navigator) Intercept(ctx context.Context, viewerID, fromProjectID, targetPath string) (domain.NavigationDecision, error) {
	active, err := n.store.IsSimulating(ctx, viewerID, fromProjectID)
	if err != nil {
		return domain.NavigationDecision{}, err
	}
	if !active || InProjectScope(fromProjectID, targetPath) {
		return domain.NavigationDecision{Outcome: domain.NavigationAllowed}, nil
	}

	pref, err := n.store.Preference(ctx, viewerID)
	if err != nil {
		return domain.NavigationDecision{}, err
	}

	if pref == domain.NavigationAutoStop {
		if err := n.store.Stop(ctx, viewerID, fromProjectID); err != nil {
			return domain.NavigationDecision{}, err
		}
		n.log.Info(ctx, "simulation stopped on navigation",
			logger.Module("simulation"),
			logger.Action("intercept"),
			zap.String("project_id", fromProjectID),
		)
		return domain.NavigationDecision{Outcome: domain.NavigationAutoStopped}, nil
	}

	pending := domain.PendingNavigation{
		ProjectID:   fromProjectID,
		TargetPath:  targetPath,
		RequestedAt: n.now().UTC(),
	}
	if err := n.store.SetPendingNavigation(ctx, viewerID, pending); err != nil {
		return domain.NavigationDecision{}, err
	}
	return domain.NavigationDecision{Outcome: domain.NavigationNeedConfirm, Pending: &pending}, nil
}

// ConfirmPending stops the simulation the pending navigation would leave and
// returns the navigation so the UI can complete it.
func (n *Navigator) ConfirmPending(ctx context.Context, viewerID string) (*domain.PendingNavigation, error) {
	pending, err := n.store.PendingNavigation(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrNoPendingNavigation
	}

	if err := n.store.Stop(ctx, viewerID, pending.ProjectID); err != nil {
		return nil, err
	}
	if err := n.store.ClearPendingNavigation(ctx, viewerID); err != nil {
		return nil, err
	}
	return pending, nil
}

// CancelPending drops the pending navigation and keeps simulating.
func (n *Navigator) CancelPending(ctx context.Context, viewerID string) error {
	pending, err := n.store.PendingNavigation(ctx, viewerID)
	if err != nil {
		return err
	}
	if pending == nil {
		return ErrNoPendingNavigation
	}
	return n.store.ClearPendingNavigation(ctx, viewerID)
}

// State assembles the banner state of one project for the viewer.
func (n *Navigator) State(ctx context.Context, viewerID, projectID string) (domain.SimulationState, error) {
	sim, err := n.store.Get(ctx, viewerID, projectID)
	if err != nil {
		return domain.SimulationState{}, err
	}
	pref, err := n.store.Preference(ctx, viewerID)
	if err != nil {
		return domain.SimulationState{}, err
	}
	pending, err := n.store.PendingNavigation(ctx, viewerID)
	if err != nil {
		return domain.SimulationState{}, err
	}
	if pending != nil && pending.ProjectID != projectID {
		pending = nil
	}

	return domain.SimulationState{
		Active:     sim != nil,
		Simulation: sim,
		Pending:    pending,
		Preference: pref,
	}, nil
}
