package cli

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/admin"
)

func newInitDBCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database schema",
		Long:  `Connect to the configured store and create any missing tables. Safe to run repeatedly.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			f := formatter(cmd, opts)
			if f.JSON() {
				return f.WriteJSON(map[string]string{"driver": app.Config.Database.Driver, "status": "ready"})
			}
			f.Printf("%s schema ready\n", app.Config.Database.Driver)
			return nil
		},
	}
}

func newResetCommand(opts *RootOptions) *cobra.Command {
	var (
		sourceName string
		all        bool
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset <project-id>",
		Short: "Delete stored records of a project",
		Long: `Delete the stored records of a project so the next sync re-inserts them.
With --all the project's sync config is deleted too. Requires --yes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to delete data without --yes")
			}
			if all && sourceName != "" {
				return NewExitError(ExitCommandError, "--all and --source are mutually exclusive")
			}

			app, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			r := &admin.Resetter{Records: app.Store, Configs: app.Store}
			var res admin.ResetResult
			if all {
				res, err = r.ResetProject(cmd.Context(), args[0])
			} else {
				res, err = r.ResetRecords(cmd.Context(), args[0], sourceName)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "reset", err)
			}

			f := formatter(cmd, opts)
			if f.JSON() {
				return f.WriteJSON(map[string]any{"records": res.Records, "configDeleted": res.ConfigDeleted})
			}
			f.Printf("deleted %d records", res.Records)
			if res.ConfigDeleted {
				f.Printf(" and the sync config")
			}
			f.Printf("\n")
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceName, "source", "s", "", "only this source name")
	cmd.Flags().BoolVar(&all, "all", false, "also delete the project's sync config")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}
