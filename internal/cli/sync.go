package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <project-id>",
		Short: "Run a project sync once",
		Long: `Run every active (source, sheet) unit of a project once and print the
per-unit counts. Exits 1 when any unit failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			result, err := app.Service.SyncNow(core.ContextWithTrigger(cmd.Context(), core.TriggerManual), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "sync", err)
			}
			if err := printSyncResult(formatter(cmd, opts), result); err != nil {
				return err
			}
			if !result.Success {
				return NewExitError(ExitFailure, "sync finished with errors: "+core.FormatUserError(syncError(result)))
			}
			return nil
		},
	}
}

func printSyncResult(f *OutputFormatter, result core.SyncResult) error {
	if f.JSON() {
		return f.WriteJSON(result)
	}

	f.Printf("project %s run %s: inserted=%d updated=%d skipped=%d errors=%d (%s)\n",
		result.ProjectID, result.RunID, result.Inserted, result.Updated, result.Skipped, result.Errors, result.Duration)
	if len(result.Units) == 0 {
		return nil
	}

	rows := make([][]string, len(result.Units))
	for i, u := range result.Units {
		status := "ok"
		if !u.Success {
			status = "failed"
		}
		rows[i] = []string{
			u.SourceID, u.SheetName, status,
			strconv.Itoa(u.Inserted), strconv.Itoa(u.Updated), strconv.Itoa(u.Skipped), strconv.Itoa(u.Errors),
			u.Error,
		}
	}
	return f.Table([]string{"SOURCE", "SHEET", "STATUS", "INSERTED", "UPDATED", "SKIPPED", "ERRORS", "ERROR"}, rows)
}

// syncError picks the error to explain a failed run: the run-level error,
// else the first failed unit.
func syncError(result core.SyncResult) error {
	if result.Error != "" {
		return fmt.Errorf("%s", result.Error)
	}
	for _, u := range result.Units {
		if !u.Success && u.Error != "" {
			return fmt.Errorf("%s", u.Error)
		}
	}
	return fmt.Errorf("sync failed")
}
