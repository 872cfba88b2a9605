package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tracker-api/internal/http/httperr"
	"tracker-api/internal/observability/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var resp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.NotNil(t, resp.Error)
	assert.False(t, resp.OK)
	return resp
}

func TestValidateProjectIDFormat(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		expected bool
	}{
		{"Alphanumeric", "project123", true},
		{"WithHyphen", "proj-1", true},
		{"WithUnderscore", "proj_1", true},
		{"UUID", "0190b8a2-7c4e-7c1a-9f3e-1d2c3b4a5f6e", true},
		{"Empty", "", false},
		{"PathTraversal", "..", false},
		{"SQLMeta", "p1';drop", false},
		{"Spaces", "proj 1", false},
		{"TooLong", strings.Repeat("a", 65), false},
		{"MaxLength", strings.Repeat("a", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateProjectIDFormat(tt.id))
		})
	}
}

func TestProjectMiddleware(t *testing.T) {
	var gotID, gotLogID string
	r := chi.NewRouter()
	r.With(ProjectMiddleware).Get("/projects/{projectId}/members", func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetProjectID(r.Context())
		gotLogID = logger.GetProjectIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/proj-1/members", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "proj-1", gotID)
		assert.Equal(t, "proj-1", gotLogID)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/bad%20id/members", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, httperr.ErrCodeInvalidProjectID, decodeError(t, rec).Error.Code)
	})
}

func TestGetProjectID_Missing(t *testing.T) {
	_, ok := GetProjectID(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
