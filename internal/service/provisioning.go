package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RoleProvisioner seeds the default roles of a project and looks them up by rank.
//
// Cross-process races are closed by the partial unique index on
// (project_id, position) WHERE is_default; singleflight only collapses
// concurrent callers inside this process.
type RoleProvisioner struct {
	roles    RoleStore
	settings SettingsStore
	group    singleflight.Group
	log      *logger.Logger
}

func NewRoleProvisioner(roles RoleStore, settings SettingsStore, log *logger.Logger) *RoleProvisioner {
	return &RoleProvisioner{roles: roles, settings: settings, log: log}
}

// CreateDefaultRolesForProject provisions the default and extra roles and
// returns a name to role id map. Calling it again is a no-op that returns the
// existing ids.
func (p *RoleProvisioner) CreateDefaultRolesForProject(ctx context.Context, projectID string) (map[string]string, error) {
	v, err, shared := p.group.Do(projectID, func() (any, error) {
		return p.provision(context.WithoutCancel(ctx), projectID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.log.Debug(ctx, "joined in-flight provisioning",
			logger.Module("provisioning"),
			logger.Action("create_default_roles"),
		)
	}

	ids := v.(map[string]string)
	out := make(map[string]string, len(ids))
	for k, id := range ids {
		out[k] = id
	}
	return out, nil
}

func (p *RoleProvisioner) provision(ctx context.Context, projectID string) (map[string]string, error) {
	defaults, extras, err := p.presets(ctx)
	if err != nil {
		return nil, err
	}

	seeded, err := p.roles.InsertDefaultRoles(ctx, projectID, defaults, extras)
	if err != nil {
		return nil, fmt.Errorf("insert default roles: %w", err)
	}

	roles, err := p.roles.ListRoles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list roles after provisioning: %w", err)
	}

	wanted := make(map[string]struct{}, len(defaults)+len(extras))
	for _, preset := range append(append([]domain.RolePreset{}, defaults...), extras...) {
		wanted[preset.Name] = struct{}{}
	}

	ids := make(map[string]string, len(wanted))
	for _, role := range roles {
		if _, ok := wanted[role.Name]; ok || role.IsDefault {
			ids[role.Name] = role.ID
		}
	}

	if seeded {
		p.log.Info(ctx, "default roles provisioned",
			logger.Module("provisioning"),
			logger.Action("create_default_roles"),
			zap.String("project_id", projectID),
			zap.Int("defaults", len(defaults)),
			zap.Int("extras", len(extras)),
		)
	}
	return ids, nil
}

// presets merges the built-in presets with the system-wide role settings.
// Extra roles are kept below the Member rank and must have a name.
func (p *RoleProvisioner) presets(ctx context.Context) ([]domain.RolePreset, []domain.RolePreset, error) {
	settings, err := p.settings.GetRoleSettings(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load role settings: %w", err)
	}

	builtins := domain.DefaultRolePresets()
	defaults := make([]domain.RolePreset, 0, len(builtins))
	for _, preset := range builtins {
		var override *domain.RoleOverride
		if ov, ok := settings.Defaults[preset.Position]; ok {
			override = &ov
		}
		defaults = append(defaults, domain.ResolvePreset(ctx, preset, override))
	}

	extras := make([]domain.RolePreset, 0, len(settings.ExtraRoles))
	taken := make(map[string]struct{}, len(defaults))
	for _, d := range defaults {
		taken[strings.ToLower(d.Name)] = struct{}{}
	}
	for i, extra := range settings.ExtraRoles {
		extra.Name = strings.TrimSpace(extra.Name)
		if extra.Name == "" {
			continue
		}
		if _, dup := taken[strings.ToLower(extra.Name)]; dup {
			p.log.Warn(ctx, "skipping extra role with duplicate name",
				logger.Module("provisioning"),
				logger.Action("resolve_presets"),
				zap.String("role_name", extra.Name),
			)
			continue
		}
		taken[strings.ToLower(extra.Name)] = struct{}{}

		if extra.Position <= domain.PositionMember {
			extra.Position = domain.PositionMember + 1 + i
		}
		extra.Permissions = domain.ParsePermissions(ctx, extra.Permissions)
		extras = append(extras, extra)
	}

	return defaults, extras, nil
}

// GetOwnerRoleForProject returns the default role at the owner position,
// provisioning the project on a miss.
func (p *RoleProvisioner) GetOwnerRoleForProject(ctx context.Context, projectID string) (*domain.Role, error) {
	return p.defaultRole(ctx, projectID, domain.PositionOwner)
}

// GetAdminRoleForProject returns the default role at the admin position.
func (p *RoleProvisioner) GetAdminRoleForProject(ctx context.Context, projectID string) (*domain.Role, error) {
	return p.defaultRole(ctx, projectID, domain.PositionAdmin)
}

// GetMemberRoleForProject returns the default role at the member position.
func (p *RoleProvisioner) GetMemberRoleForProject(ctx context.Context, projectID string) (*domain.Role, error) {
	return p.defaultRole(ctx, projectID, domain.PositionMember)
}

// defaultRole looks up by position so renamed defaults still resolve.
func (p *RoleProvisioner) defaultRole(ctx context.Context, projectID string, position int) (*domain.Role, error) {
	role, err := p.roles.GetDefaultRoleByPosition(ctx, projectID, position)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrRoleNotFound) {
		return nil, fmt.Errorf("load default role: %w", err)
	}

	if _, err := p.CreateDefaultRolesForProject(ctx, projectID); err != nil {
		return nil, err
	}

	role, err = p.roles.GetDefaultRoleByPosition(ctx, projectID, position)
	if errors.Is(err, ErrRoleNotFound) {
		return nil, fmt.Errorf("%w: no default role at position %d", ErrProvisioningFailed, position)
	}
	if err != nil {
		return nil, fmt.Errorf("reload default role: %w", err)
	}
	return role, nil
}
