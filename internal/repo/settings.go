package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RoleSettingsKey is the system_settings row holding role provisioning overrides.
const RoleSettingsKey = "role_defaults"

// SettingsRepository reads administrator-managed system settings.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetRoleSettings returns the role provisioning overrides. A missing row yields
// zero settings; an unreadable document is logged and also yields zero settings.
func (r *SettingsRepository) GetRoleSettings(ctx context.Context) (domain.RoleSettings, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = $1`, RoleSettingsKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoleSettings{}, nil
		}
		return domain.RoleSettings{}, fmt.Errorf("query role settings: %w", err)
	}
	return decodeRoleSettings(ctx, raw), nil
}

// PutRoleSettings upserts the role provisioning overrides.
func (r *SettingsRepository) PutRoleSettings(ctx context.Context, settings domain.RoleSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode role settings: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO system_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, RoleSettingsKey, raw)
	if err != nil {
		return fmt.Errorf("upsert role settings: %w", err)
	}
	return nil
}

func decodeRoleSettings(ctx context.Context, raw []byte) domain.RoleSettings {
	var settings domain.RoleSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		logger.GetLogger(ctx).Warn(ctx, "unreadable role settings, using built-in presets",
			logger.Module("settings"),
			logger.Action("get_role_settings"),
			zap.Error(err),
		)
		return domain.RoleSettings{}
	}
	return settings
}
