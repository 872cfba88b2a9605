package domain

import "time"

// =====================================================
// Role Simulation (presentation only)
// =====================================================
// Simulation state changes what the UI renders for a viewer. It is never an
// input to authorization: API calls keep running under the viewer's real
// permissions.

// SimulatedRole is the "viewing as" overlay for one project.
type SimulatedRole struct {
	ProjectID   string       `json:"projectId"`
	Role        RoleSummary  `json:"role"`
	Permissions []Permission `json:"permissions"`
	StartedAt   time.Time    `json:"startedAt"`
}

// NavigationPreference controls what happens when a simulating viewer leaves the project.
type NavigationPreference string

const (
	// NavigationConfirm asks the viewer before leaving.
	NavigationConfirm NavigationPreference = "confirm"

	// NavigationAutoStop ends the simulation silently.
	NavigationAutoStop NavigationPreference = "auto_stop"
)

// IsValid checks if the preference is one of the defined constants
func (p NavigationPreference) IsValid() bool {
	return p == NavigationConfirm || p == NavigationAutoStop
}

// PendingNavigation is an intercepted navigation awaiting confirmation.
type PendingNavigation struct {
	ProjectID   string    `json:"projectId"`
	TargetPath  string    `json:"targetPath"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NavigationOutcome is the result of intercepting a navigation.
type NavigationOutcome string

const (
	NavigationAllowed     NavigationOutcome = "allow"
	NavigationNeedConfirm NavigationOutcome = "confirm"
	NavigationAutoStopped NavigationOutcome = "auto_stopped"
)

// NavigationDecision is returned to the UI for an attempted navigation.
type NavigationDecision struct {
	Outcome NavigationOutcome  `json:"outcome"`
	Pending *PendingNavigation `json:"pending,omitempty"`
}

// SimulationState is everything the UI needs to render the simulation banner.
type SimulationState struct {
	Active     bool                 `json:"active"`
	Simulation *SimulatedRole       `json:"simulation,omitempty"`
	Pending    *PendingNavigation   `json:"pendingNavigation,omitempty"`
	Preference NavigationPreference `json:"preference"`
}

// StartSimulationRequest starts viewing a project as another role.
type StartSimulationRequest struct {
	RoleID string `json:"roleId" validate:"required,min=1,max=64"`
}

// NavigationRequest reports an in-app navigation attempt.
type NavigationRequest struct {
	TargetPath string `json:"targetPath" validate:"required,startswith=/,max=2048"`
}

// SimulationPreferenceRequest updates the viewer's navigation preference.
type SimulationPreferenceRequest struct {
	Preference NavigationPreference `json:"preference" validate:"required,oneof=confirm auto_stop"`
}
