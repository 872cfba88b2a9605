package domain

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the AddMemberRequest.
func (r *AddMemberRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.RoleID = strings.TrimSpace(r.RoleID)
	return validate.Struct(r)
}

// Validate validates the UpdateMemberRoleRequest.
func (r *UpdateMemberRoleRequest) Validate() error {
	r.RoleID = strings.TrimSpace(r.RoleID)
	return validate.Struct(r)
}

// Validate validates the SetOverridesRequest.
func (r *SetOverridesRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the CreateRoleRequest.
// Name is trimmed before validation.
func (r *CreateRoleRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	return validate.Struct(r)
}

// Validate validates the StartSimulationRequest.
func (r *StartSimulationRequest) Validate() error {
	r.RoleID = strings.TrimSpace(r.RoleID)
	return validate.Struct(r)
}

// Validate validates the NavigationRequest.
func (r *NavigationRequest) Validate() error {
	r.TargetPath = strings.TrimSpace(r.TargetPath)
	return validate.Struct(r)
}

// Validate validates the SimulationPreferenceRequest.
func (r *SimulationPreferenceRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the AuthorizeRequest.
func (r *AuthorizeRequest) Validate() error {
	return validate.Struct(r)
}
