package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/exprsn/platform/cmd/platform/repository"
	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/workspace"
)

var (
	overwrite bool
	createNew bool
)

// artifactsCmd represents the artifacts command
var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Sync low-code applications with repository workspaces",
}

var exportApplicationCmd = &cobra.Command{
	Use:   "export [application-id] [repository-id]",
	Short: "Export an application and its artifacts into a repository workspace",
	Args:  cobra.ExactArgs(2),
	RunE: withArtifactSync(func(cmd *cobra.Command, args []string, svc *service.ArtifactSyncService) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		res, err := svc.ExportApplication(cmd.Context(), ids[0], ids[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	}),
}

var importApplicationCmd = &cobra.Command{
	Use:   "import [repository-id]",
	Short: "Import every artifact file of a repository workspace",
	Args:  cobra.ExactArgs(1),
	RunE: withArtifactSync(func(cmd *cobra.Command, args []string, svc *service.ArtifactSyncService) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		res, err := svc.ImportApplication(cmd.Context(), ids[0], service.ImportOptions{
			Overwrite: overwrite,
			CreateNew: createNew,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	}),
}

func withArtifactSync(run func(*cobra.Command, []string, *service.ArtifactSyncService) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		components, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer components.Shutdown(cmd.Context())

		svc := service.NewArtifactSyncService(
			repository.NewArtifactRepository(components.DB),
			repository.NewGitRepository(components.DB),
			workspace.NewOS(components.Config.Workspace.Root, components.Logger),
			components.Logger,
		)
		return run(cmd, args, svc)
	}
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(args))
	for i, raw := range args {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", raw, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func init() {
	importApplicationCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace database artifacts that differ from their files")
	importApplicationCmd.Flags().BoolVar(&createNew, "create-new", false, "Create artifacts missing from the database")

	artifactsCmd.AddCommand(exportApplicationCmd)
	artifactsCmd.AddCommand(importApplicationCmd)
}
