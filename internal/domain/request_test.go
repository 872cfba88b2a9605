package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failedFields returns the JSON names of the fields that failed validation.
func failedFields(t *testing.T, err error) []string {
	t.Helper()
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected validation errors, got %v", err)
	out := make([]string, len(verrs))
	for i, fe := range verrs {
		out[i] = fe.Field()
	}
	return out
}

func TestAddMemberRequest_Validate(t *testing.T) {
	req := &AddMemberRequest{UserID: "  u1  ", RoleID: " "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "u1", req.UserID)
	assert.Empty(t, req.RoleID)

	err := (&AddMemberRequest{UserID: "   "}).Validate()
	assert.Equal(t, []string{"userId"}, failedFields(t, err))

	err = (&AddMemberRequest{UserID: strings.Repeat("x", 65)}).Validate()
	assert.Equal(t, []string{"userId"}, failedFields(t, err))
}

func TestUpdateMemberRoleRequest_Validate(t *testing.T) {
	assert.NoError(t, (&UpdateMemberRoleRequest{RoleID: "r1"}).Validate())
	assert.Equal(t, []string{"roleId"}, failedFields(t, (&UpdateMemberRoleRequest{}).Validate()))
}

func TestSetOverridesRequest_Validate(t *testing.T) {
	assert.NoError(t, (&SetOverridesRequest{}).Validate())
	assert.NoError(t, (&SetOverridesRequest{Permissions: []string{"board.view"}}).Validate())
	assert.Error(t, (&SetOverridesRequest{Permissions: []string{""}}).Validate())
}

func TestCreateRoleRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		req    CreateRoleRequest
		failed []string
	}{
		{"valid", CreateRoleRequest{Name: "QA", Color: "#10b981", Position: 3}, nil},
		{"short hex color", CreateRoleRequest{Name: "QA", Color: "#fff", Position: 3}, nil},
		{"no color", CreateRoleRequest{Name: "QA", Position: 3}, nil},
		{"blank name", CreateRoleRequest{Name: "   ", Position: 3}, []string{"name"}},
		{"bad color", CreateRoleRequest{Name: "QA", Color: "teal", Position: 3}, []string{"color"}},
		{"negative position", CreateRoleRequest{Name: "QA", Position: -1}, []string{"position"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.failed == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.failed, failedFields(t, err))
		})
	}
}

func TestCreateRoleRequest_TrimsName(t *testing.T) {
	req := &CreateRoleRequest{Name: "  QA  ", Position: 3}
	require.NoError(t, req.Validate())
	assert.Equal(t, "QA", req.Name)
}

func TestSimulationRequests_Validate(t *testing.T) {
	assert.NoError(t, (&StartSimulationRequest{RoleID: "r1"}).Validate())
	assert.Equal(t, []string{"roleId"}, failedFields(t, (&StartSimulationRequest{RoleID: " "}).Validate()))

	nav := &NavigationRequest{TargetPath: " /projects/p1/board "}
	require.NoError(t, nav.Validate())
	assert.Equal(t, "/projects/p1/board", nav.TargetPath)
	assert.Equal(t, []string{"targetPath"}, failedFields(t, (&NavigationRequest{TargetPath: "projects/p1"}).Validate()))

	assert.NoError(t, (&SimulationPreferenceRequest{Preference: NavigationAutoStop}).Validate())
	assert.Equal(t, []string{"preference"}, failedFields(t, (&SimulationPreferenceRequest{Preference: "always"}).Validate()))
}

func TestAuthorizeRequest_Validate(t *testing.T) {
	owner := "u1"

	tests := []struct {
		name  string
		req   AuthorizeRequest
		valid bool
	}{
		{"ticket edit", AuthorizeRequest{Resource: ResourceTicket, Action: "edit", OwnerID: &owner}, true},
		{"ticket without action", AuthorizeRequest{Resource: ResourceTicket}, false},
		{"ticket unknown action", AuthorizeRequest{Resource: ResourceTicket, Action: "archive"}, false},
		{"comment delete", AuthorizeRequest{Resource: ResourceComment, Action: "delete"}, true},
		{"permission", AuthorizeRequest{Resource: ResourcePermission, Permission: "board.view"}, true},
		{"permission missing key", AuthorizeRequest{Resource: ResourcePermission}, false},
		{"unknown resource", AuthorizeRequest{Resource: "sprint", Action: "view"}, false},
		{"empty owner id", AuthorizeRequest{Resource: ResourceTicket, Action: "view", OwnerID: new(string)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
