package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tracker-api/internal/domain"
	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/service"
	"tracker-api/internal/simulation"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// DataResponse is the success envelope.
type DataResponse struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, DataResponse{OK: true, Data: data})
}

type validatable interface {
	Validate() error
}

// decodeAndValidate reads a JSON body into dst and runs its Validate method.
// It writes the error response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	ctx := r.Context()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		logger.GetLogger(ctx).Warn(ctx, "invalid request body",
			logger.Module("http"),
			logger.Action("decode"),
			zap.Error(err),
		)
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidJSON, "request body must be valid JSON")
		return false
	}

	if err := dst.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = describeTag(fe)
			}
			httperr.WriteErrorWithFields(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeValidationError, "validation failed", fields)
			return false
		}
		httperr.WriteError(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeValidationError, err.Error())
		return false
	}
	return true
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "hexcolor":
		return "must be a hex color"
	case "startswith":
		return "must start with " + fe.Param()
	default:
		return "is invalid"
	}
}

// handleServiceError maps service, repository and simulation errors onto the error envelope.
// Anything unrecognised becomes a 500 with the cause kept for the request log.
func handleServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	if authzErr, ok := service.AsAuthzError(err); ok {
		writeAuthzError(w, ctx, authzErr)
		return
	}

	switch {
	case errors.Is(err, service.ErrMemberNotFound):
		httperr.NotFound404(w, ctx, "member not found")
	case errors.Is(err, service.ErrRoleNotFound):
		httperr.NotFound404(w, ctx, "role not found")
	case errors.Is(err, service.ErrUserNotFound):
		httperr.NotFound404(w, ctx, "user not found")
	case errors.Is(err, service.ErrProjectNotFound):
		httperr.NotFound404(w, ctx, "project not found")
	case errors.Is(err, service.ErrAlreadyMember):
		httperr.Conflict409(w, ctx, httperr.ErrCodeAlreadyAMember, err.Error())
	case errors.Is(err, service.ErrRoleInUse):
		httperr.Conflict409(w, ctx, httperr.ErrCodeRoleInUse, "role is assigned to members; pass reassignTo to move them")
	case errors.Is(err, service.ErrDefaultRoleImmutable):
		httperr.Conflict409(w, ctx, httperr.ErrCodeDefaultRole, err.Error())
	case errors.Is(err, service.ErrLastOwner), errors.Is(err, service.ErrOwnerCannotLeave):
		httperr.Conflict409(w, ctx, httperr.ErrCodeLastOwnerRemove, err.Error())
	case errors.Is(err, service.ErrDuplicateRoleName):
		httperr.Conflict409(w, ctx, httperr.ErrCodeConflict, err.Error())
	case errors.Is(err, service.ErrInvalidReassignTarget), errors.Is(err, service.ErrInvalidPosition):
		httperr.WriteError(w, ctx, http.StatusUnprocessableEntity, httperr.ErrCodeValidationError, err.Error())
	case errors.Is(err, simulation.ErrNotEligible):
		httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, err.Error())
	case errors.Is(err, simulation.ErrNoPendingNavigation):
		httperr.Conflict409(w, ctx, httperr.ErrCodeConflict, err.Error())
	case errors.Is(err, simulation.ErrInvalidPreference):
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, err.Error())
	default:
		logger.SetRootError(ctx, err)
		httperr.InternalError500(w, ctx, err.Error())
	}
}

func writeAuthzError(w http.ResponseWriter, ctx context.Context, e *service.AuthzError) {
	switch e.Kind {
	case service.KindUnauthenticated:
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeUnauthenticated, e.Message)
	case service.KindAccountDisabled:
		httperr.Forbidden403(w, ctx, httperr.ErrCodeAccountDisabled, e.Message)
	case service.KindNotAProjectMember:
		httperr.Forbidden403(w, ctx, httperr.ErrCodeNotAMember, e.Message)
	case service.KindMissingPermission:
		httperr.Forbidden403(w, ctx, httperr.ErrCodeMissingPermission, e.Message)
	case service.KindResourcePermissionDenied:
		httperr.Forbidden403(w, ctx, httperr.ErrCodeResourcePermissionDenied, e.Message)
	case service.KindRoleRankViolation:
		httperr.Forbidden403(w, ctx, httperr.ErrCodeRoleRankViolation, e.Message)
	default:
		httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, e.Message)
	}
}

// requireUser authenticates the caller through the guards and writes the
// error response on failure.
func requireUser(w http.ResponseWriter, r *http.Request, guards *service.Guards) (*domain.User, bool) {
	user, err := guards.RequireAuth(r.Context())
	if err != nil {
		handleServiceError(w, r.Context(), err)
		return nil, false
	}
	return user, true
}
