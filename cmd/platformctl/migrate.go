package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/exprsn/platform/cmd/platform/repository"
	"github.com/exprsn/platform/cmd/platform/service"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage SQL migrations",
}

var listMigrationsCmd = &cobra.Command{
	Use:   "list",
	Short: "List migrations in execution order",
	Args:  cobra.NoArgs,
	RunE: withMigrations(func(cmd *cobra.Command, _ []string, svc *service.MigrationService) error {
		migrations, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		ordered, err := service.PlanExecutionOrder(migrations)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORDER\tNAME\tSTATUS\tID")
		for i, m := range ordered {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, m.MigrationName, m.Status, m.ID)
		}
		return w.Flush()
	}),
}

var applyPendingCmd = &cobra.Command{
	Use:   "apply-pending",
	Short: "Execute every pending migration, stopping at the first failure",
	Args:  cobra.NoArgs,
	RunE: withMigrations(func(cmd *cobra.Command, _ []string, svc *service.MigrationService) error {
		res, err := svc.ExecuteAllPending(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("%d of %d migrations failed", res.Failed, res.Total)
		}
		return nil
	}),
}

var executeMigrationCmd = &cobra.Command{
	Use:   "execute [id]",
	Short: "Execute one pending or failed migration",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrations(func(cmd *cobra.Command, args []string, svc *service.MigrationService) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid migration id: %w", err)
		}
		m, err := svc.Execute(cmd.Context(), id, userID)
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	}),
}

var rollbackMigrationCmd = &cobra.Command{
	Use:   "rollback [id]",
	Short: "Run the rollback script of a completed migration",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrations(func(cmd *cobra.Command, args []string, svc *service.MigrationService) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid migration id: %w", err)
		}
		m, err := svc.Rollback(cmd.Context(), id, userID)
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	}),
}

func withMigrations(run func(*cobra.Command, []string, *service.MigrationService) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		components, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer components.Shutdown(cmd.Context())

		svc := service.NewMigrationService(
			repository.NewMigrationRepository(components.DB),
			repository.NewScriptExecutor(components.DB),
			components.Logger,
		)
		return run(cmd, args, svc)
	}
}

func init() {
	migrateCmd.AddCommand(listMigrationsCmd)
	migrateCmd.AddCommand(applyPendingCmd)
	migrateCmd.AddCommand(executeMigrationCmd)
	migrateCmd.AddCommand(rollbackMigrationCmd)
}
