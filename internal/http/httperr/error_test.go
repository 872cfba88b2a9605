package httperr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tracker-api/internal/observability/logger"
	"tracker-api/internal/observability/requestid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	return logger.SetLoggerInContext(context.Background(), logger.NewNop())
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	require.NotNil(t, response.Error)
	return response
}

func TestWriteError(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name    string
		status  int
		code    string
		message string
	}{
		{"401 Unauthenticated", http.StatusUnauthorized, ErrCodeUnauthenticated, "authentication required"},
		{"403 Not a member", http.StatusForbidden, ErrCodeNotAMember, "not a member of this project"},
		{"403 Missing permission", http.StatusForbidden, ErrCodeMissingPermission, "missing permission members.manage"},
		{"403 Rank violation", http.StatusForbidden, ErrCodeRoleRankViolation, "cannot manage a member of equal or higher rank"},
		{"400 Bad project id", http.StatusBadRequest, ErrCodeInvalidProjectID, "invalid project ID format"},
		{"404 Not found", http.StatusNotFound, ErrCodeNotFound, "role not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, ctx, tt.status, tt.code, tt.message)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			response := decode(t, rr)
			assert.False(t, response.OK)
			assert.Equal(t, tt.code, response.Error.Code)
			assert.Equal(t, tt.message, response.Error.Message)
		})
	}
}

func TestWriteErrorWithFields(t *testing.T) {
	rr := httptest.NewRecorder()
	fields := map[string]string{
		"roleId":      "is required",
		"permissions": "must be catalog permissions",
	}

	WriteErrorWithFields(rr, testContext(), http.StatusBadRequest, ErrCodeValidationError, "validation failed", fields)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	response := decode(t, rr)
	assert.False(t, response.OK)
	assert.Equal(t, fields, response.Error.Fields)
}

func TestStatusHelpers(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"Unauthorized401", func(w http.ResponseWriter) { Unauthorized401(w, ctx, ErrCodeInvalidToken, "token is invalid") }, http.StatusUnauthorized, ErrCodeInvalidToken},
		{"Forbidden403", func(w http.ResponseWriter) { Forbidden403(w, ctx, ErrCodeAccountDisabled, "account disabled") }, http.StatusForbidden, ErrCodeAccountDisabled},
		{"NotFound404", func(w http.ResponseWriter) { NotFound404(w, ctx, "member not found") }, http.StatusNotFound, ErrCodeNotFound},
		{"Conflict409", func(w http.ResponseWriter) { Conflict409(w, ctx, ErrCodeRoleInUse, "role in use") }, http.StatusConflict, ErrCodeRoleInUse},
		{"BadRequest400", func(w http.ResponseWriter) { BadRequest400(w, ctx, ErrCodeInvalidJSON, "bad json") }, http.StatusBadRequest, ErrCodeInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.write(rr)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decode(t, rr).Error.Code)
		})
	}
}

func TestInternalError500_HidesMessage(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	ctx := requestid.SetRequestID(testContext(), "req_abc")

	rr := httptest.NewRecorder()
	InternalError500(rr, ctx, "database connection failed: password=hunter2")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	response := decode(t, rr)
	assert.Equal(t, ErrCodeInternalError, response.Error.Code)
	assert.Equal(t, "Internal Server Error", response.Error.Message)
	assert.Empty(t, response.Error.ErrorID)
}

func TestInternalError500_ExposesRequestIDInDev(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	ctx := requestid.SetRequestID(testContext(), "req_abc")

	rr := httptest.NewRecorder()
	InternalError(rr, ctx)

	assert.Equal(t, "req_abc", decode(t, rr).Error.ErrorID)
}
