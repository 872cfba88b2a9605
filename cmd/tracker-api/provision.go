package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"tracker-api/internal/config"
	"tracker-api/internal/database"
	"tracker-api/internal/observability/logger"
	"tracker-api/internal/repo"
	"tracker-api/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var provisionCmd = &cobra.Command{
	Use:   "provision-roles",
	Short: "Seed the default roles into projects",
	Long: `Create the Owner, Admin and Member roles (plus any extra roles from the
system settings) in projects that do not have them yet. Existing roles are left
untouched, so the command is safe to re-run.`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringSlice("project", nil, "project id to provision (repeatable); all projects when omitted")
	rootCmd.AddCommand(provisionCmd)
}

// projectSource lists and checks projects.
type projectSource interface {
	ProjectExists(ctx context.Context, projectID string) (bool, error)
	ListProjectIDs(ctx context.Context) ([]string, error)
}

// roleProvisioner is satisfied by *service.RoleProvisioner.
type roleProvisioner interface {
	CreateDefaultRolesForProject(ctx context.Context, projectID string) (map[string]string, error)
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	only, err := cmd.Flags().GetStringSlice("project")
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.OTELServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{MaxConns: 4, MinConns: 1})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	projects := repo.NewProjectRepository(pool)
	provisioner := service.NewRoleProvisioner(projects, repo.NewSettingsRepository(pool), log)

	return provisionProjects(ctx, log, projects, provisioner, only, cmd.OutOrStdout())
}

// provisionProjects provisions the given projects, or every project when ids is
// empty. It stops at the first failure.
func provisionProjects(ctx context.Context, log *logger.Logger, projects projectSource, prov roleProvisioner, ids []string, out io.Writer) error {
	if len(ids) == 0 {
		all, err := projects.ListProjectIDs(ctx)
		if err != nil {
			return err
		}
		ids = all
	} else {
		for _, id := range ids {
			ok, err := projects.ProjectExists(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("project %s: %w", id, repo.ErrProjectNotFound)
			}
		}
	}

	for _, id := range ids {
		roles, err := prov.CreateDefaultRolesForProject(ctx, id)
		if err != nil {
			return fmt.Errorf("project %s: %w", id, err)
		}

		names := make([]string, 0, len(roles))
		for name := range roles {
			names = append(names, name)
		}
		sort.Strings(names)

		log.Info(ctx, "project roles provisioned",
			logger.Module("provisioning"),
			logger.Action("provision_roles_cli"),
			zap.String("project_id", id),
			zap.Strings("roles", names),
		)
		fmt.Fprintf(out, "%s: %d roles\n", id, len(roles))
	}

	fmt.Fprintf(out, "Provisioned %d project(s)\n", len(ids))
	return nil
}
