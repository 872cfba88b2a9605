package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"tracker-api/internal/config"
	"tracker-api/internal/database"
	"tracker-api/internal/domain"
	"tracker-api/internal/repo"

	"github.com/spf13/cobra"
)

var roleSettingsCmd = &cobra.Command{
	Use:   "role-settings",
	Short: "Inspect or replace the system-wide role provisioning settings",
	Long: `Role settings rename or re-permission the built-in Owner, Admin and Member
roles and add extra roles for projects provisioned from now on. Existing project
roles are not changed.`,
}

var roleSettingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored role settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettingsRepo(cmd, func(ctx context.Context, settings *repo.SettingsRepository) error {
			return showRoleSettings(ctx, settings, cmd.OutOrStdout())
		})
	},
}

var roleSettingsApplyCmd = &cobra.Command{
	Use:   "apply FILE",
	Short: "Validate a JSON settings document and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read settings file: %w", err)
		}
		settings, err := parseRoleSettings(raw)
		if err != nil {
			return err
		}
		return withSettingsRepo(cmd, func(ctx context.Context, repository *repo.SettingsRepository) error {
			if err := repository.PutRoleSettings(ctx, settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored role settings: %d override(s), %d extra role(s)\n",
				len(settings.Defaults), len(settings.ExtraRoles))
			return nil
		})
	},
}

func init() {
	roleSettingsCmd.AddCommand(roleSettingsShowCmd, roleSettingsApplyCmd)
	rootCmd.AddCommand(roleSettingsCmd)
}

type roleSettingsReader interface {
	GetRoleSettings(ctx context.Context) (domain.RoleSettings, error)
}

func withSettingsRepo(cmd *cobra.Command, fn func(ctx context.Context, settings *repo.SettingsRepository) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, repo.NewSettingsRepository(pool))
}

func showRoleSettings(ctx context.Context, settings roleSettingsReader, out io.Writer) error {
	current, err := settings.GetRoleSettings(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(current)
}

// parseRoleSettings decodes a settings document strictly. Unlike provisioning,
// which drops bad entries silently, the CLI rejects them so typos surface.
func parseRoleSettings(raw []byte) (domain.RoleSettings, error) {
	var settings domain.RoleSettings
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		return domain.RoleSettings{}, fmt.Errorf("invalid settings document: %w", err)
	}

	var problems []string
	for position, override := range settings.Defaults {
		if position < domain.PositionOwner || position > domain.PositionMember {
			problems = append(problems, fmt.Sprintf("defaults: no built-in role at position %d", position))
		}
		if override.Name != nil && strings.TrimSpace(*override.Name) == "" {
			problems = append(problems, fmt.Sprintf("defaults[%d].name: must not be blank", position))
		}
		problems = append(problems, unknownPermissions(fmt.Sprintf("defaults[%d]", position), override.Permissions)...)
	}
	for i, extra := range settings.ExtraRoles {
		if strings.TrimSpace(extra.Name) == "" {
			problems = append(problems, fmt.Sprintf("extraRoles[%d].name: is required", i))
		}
		perms := make([]string, len(extra.Permissions))
		for j, p := range extra.Permissions {
			perms[j] = string(p)
		}
		problems = append(problems, unknownPermissions(fmt.Sprintf("extraRoles[%d]", i), perms)...)
	}

	if len(problems) > 0 {
		return domain.RoleSettings{}, fmt.Errorf("invalid settings document:\n  %s", strings.Join(problems, "\n  "))
	}
	return settings, nil
}

func unknownPermissions(path string, perms []string) []string {
	var out []string
	for _, p := range perms {
		if !domain.IsValidPermission(p) {
			out = append(out, fmt.Sprintf("%s.permissions: unknown permission %q", path, p))
		}
	}
	return out
}
