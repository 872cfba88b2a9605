package handler

import (
	"net/http"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service"
	"tracker-api/internal/simulation"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SimulationHandler manages the viewer's "viewing as" overlay. Nothing here
// changes what the API authorizes; the real permissions keep applying.
type SimulationHandler struct {
	members   *service.MemberService
	guards    *service.Guards
	store     simulation.Store
	navigator *simulation.Navigator
}

func NewSimulationHandler(members *service.MemberService, guards *service.Guards, store simulation.Store, navigator *simulation.Navigator) *SimulationHandler {
	return &SimulationHandler{members: members, guards: guards, store: store, navigator: navigator}
}

// GetState handles GET /v1/projects/{projectId}/simulation
func (h *SimulationHandler) GetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	state, err := h.navigator.State(ctx, user.ID, chi.URLParam(r, "projectId"))
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, state)
}

// Start handles PUT /v1/projects/{projectId}/simulation
func (h *SimulationHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)
	projectID := chi.URLParam(r, "projectId")

	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.StartSimulationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	eff, err := h.guards.RequireMembership(ctx, user.ID, projectID)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	role, err := h.members.GetRole(ctx, user.ID, projectID, req.RoleID)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	if !simulation.Eligible(eff, role) {
		handleServiceError(w, ctx, simulation.ErrNotEligible)
		return
	}

	sim, err := h.store.Start(ctx, user.ID, projectID, role.Summary(), domain.ParsePermissions(ctx, role.Permissions))
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}

	log.Info(ctx, "simulation started",
		logger.Module("simulation"),
		logger.Action("start"),
		zap.String("role_id", role.ID),
		zap.Int("role_position", role.Position),
	)
	writeData(w, http.StatusOK, sim)
}

// Stop handles DELETE /v1/projects/{projectId}/simulation
// With ?all=true every project the viewer simulates is stopped.
func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var err error
	if r.URL.Query().Get("all") == "true" {
		err = h.store.StopAll(ctx, user.ID)
	} else {
		err = h.store.Stop(ctx, user.ID, chi.URLParam(r, "projectId"))
	}
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Navigate handles POST /v1/projects/{projectId}/simulation/navigation
func (h *SimulationHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.NavigationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	decision, err := h.navigator.Intercept(ctx, user.ID, chi.URLParam(r, "projectId"), req.TargetPath)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, decision)
}

// ConfirmNavigation handles POST /v1/projects/{projectId}/simulation/navigation:confirm
func (h *SimulationHandler) ConfirmNavigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	pending, err := h.navigator.ConfirmPending(ctx, user.ID)
	if err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, pending)
}

// CancelNavigation handles POST /v1/projects/{projectId}/simulation/navigation:cancel
func (h *SimulationHandler) CancelNavigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	if err := h.navigator.CancelPending(ctx, user.ID); err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPreference handles PUT /v1/projects/{projectId}/simulation/preference
func (h *SimulationHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := requireUser(w, r, h.guards)
	if !ok {
		return
	}

	var req domain.SimulationPreferenceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.SetPreference(ctx, user.ID, req.Preference); err != nil {
		handleServiceError(w, ctx, err)
		return
	}
	writeData(w, http.StatusOK, req)
}
