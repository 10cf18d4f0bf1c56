// Package cli implements the sheetsync command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/application"
	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string // "text" | "json"
	EnvFile string
	Verbose bool

	// LoadConfig reads the engine configuration; defaults to config.Load.
	LoadConfig func() (*config.Config, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheetsync",
		Short: "Sync spreadsheet rows into the metrics store",
		Long: `sheetsync pulls rows from connected spreadsheets, maps columns to
semantic fields and upserts them as daily aggregates or individual records.

Commands use the same environment variables as the server (DATABASE_DRIVER,
DATABASE_URL, SOURCE_ADAPTER, CSV_ROOT, ...). A .env file is read if present.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return WrapExitError(ExitCommandError, "read env file", err)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			slog.SetDefault(slog.New(logging.NewHandler(cmd.ErrOrStderr(), level, "text")))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file to load")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newImportConfigCommand(opts))
	cmd.AddCommand(newExportConfigCommand(opts))
	cmd.AddCommand(newColumnsCommand(opts))
	cmd.AddCommand(newRecordsCommand(opts))
	cmd.AddCommand(newInitDBCommand(opts))
	cmd.AddCommand(newResetCommand(opts))

	return cmd
}

// openApp loads configuration and wires the engine for one command.
func openApp(ctx context.Context, opts *RootOptions) (*application.App, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	app, err := application.New(ctx, cfg, application.Options{})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "start engine", err)
	}
	return app, nil
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}
