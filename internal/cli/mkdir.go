package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-upload/internal/config"
	"github.com/rescale/rescale-upload/internal/folders"
	"github.com/rescale/rescale-upload/internal/upload"
	"github.com/rescale/rescale-upload/internal/validation"
)

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	var folderID string
	var backendType string

	cmd := &cobra.Command{
		Use:   "mkdir <path> [path...]",
		Short: "Create remote folders",
		Long: `Create remote folders and any missing parents, shallowest first.

Example:
  # Create runs/2024/inputs and runs/2024/outputs under the home folder
  rescale-upload mkdir runs/2024/inputs runs/2024/outputs

  # Create a folder inside a specific parent
  rescale-upload mkdir results --folder-id XxYyZz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			ctx := GetContext()

			for _, arg := range args {
				if err := validation.ValidateRelativePath(arg); err != nil {
					return err
				}
			}

			cfg, creds, err := loadSettings(config.FlagOverrides{
				Backend:  backendType,
				FolderID: folderID,
			})
			if err != nil {
				return err
			}

			backend, err := openBackend(ctx, cfg, creds, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			opts := upload.OptionsFromConfig(cfg)
			opts.Logger = logger.Component("mkdir")
			pathMap, report, mkErr := upload.NewEngine(backend, opts).Mkdir(ctx, args)
			if report == nil {
				return mkErr
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, d := range folders.PlanDirectories(args) {
				if id, ok := pathMap.Lookup(d.RelativePath); ok {
					fmt.Fprintf(tw, "✓ %s/\t%s\n", d.RelativePath, id)
				}
			}
			for _, f := range report.Failures {
				fmt.Fprintf(tw, "✗ %s/\t%s\n", f.RelativePath, errString(f.Err))
			}
			tw.Flush()
			fmt.Fprintf(out, "\n%d folder(s) created\n", report.Created)

			if mkErr != nil {
				logger.Error().Err(mkErr).Msg("Folder creation incomplete")
				return errIncomplete
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&folderID, "folder-id", "", "Parent folder ID (default: home folder)")
	cmd.Flags().StringVar(&backendType, "backend", "", "Storage backend: rest, s3, azure or blob (default from config)")

	return cmd
}
