package middleware

import (
	"context"
	"net/http"
	"regexp"

	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const projectIDKey contextKey = "project_id"

// ProjectIDParam is the chi URL parameter holding the project id.
const ProjectIDParam = "projectId"

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateProjectIDFormat reports whether id is a well-formed project id.
func ValidateProjectIDFormat(id string) bool {
	return projectIDPattern.MatchString(id)
}

// ProjectMiddleware validates the {projectId} path parameter and tags the
// request context and span with it. Membership is checked later by the guards.
func ProjectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projectID := chi.URLParam(r, ProjectIDParam)
		if !ValidateProjectIDFormat(projectID) {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidProjectID, "invalid project ID format")
			return
		}

		trace.SpanFromContext(ctx).SetAttributes(attribute.String("project.id", projectID))

		ctx = logger.SetProjectIDInContext(ctx, projectID)
		ctx = context.WithValue(ctx, projectIDKey, projectID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetProjectID returns the validated project id set by ProjectMiddleware.
func GetProjectID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(projectIDKey).(string)
	return id, ok && id != ""
}
