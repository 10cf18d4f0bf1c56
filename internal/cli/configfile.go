package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

func newImportConfigCommand(opts *RootOptions) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "import-config <file.yaml>",
		Short: "Validate and save a project sync config from YAML",
		Long: `Read a project sync config from a YAML file, validate it and save it.
Run status fields are never read from the file.

Example:

  projectId: acme
  autoSyncEnabled: true
  intervalMinutes: 60
  sources:
    - name: Ads
      spreadsheetId: 1AbC...
      sheets: [Sheet1]
      syncMode: aggregate
      isActive: true
      columnMappings:
        A: {semanticKey: date}
        C: {semanticKey: amount_spent}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfigFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read config", err)
			}
			if projectID != "" {
				cfg.ProjectID = projectID
			}

			app, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			saved, err := app.Service.SaveConfig(cmd.Context(), cfg)
			if err != nil {
				return WrapExitError(ExitFailure, "save config", err)
			}

			f := formatter(cmd, opts)
			if f.JSON() {
				return f.WriteJSON(saved)
			}
			f.Printf("saved config for project %s (%d sources, auto-sync %t, every %d min)\n",
				saved.ProjectID, len(saved.Sources), saved.AutoSyncEnabled, saved.IntervalMinutes)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "override the projectId in the file")
	return cmd
}

func newExportConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-config <project-id>",
		Short: "Print a project sync config as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			cfg, err := app.Service.GetConfig(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "load config", err)
			}

			f := formatter(cmd, opts)
			if f.JSON() {
				return f.WriteJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode yaml: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// readConfigFile decodes a YAML project config, rejecting unknown keys.
func readConfigFile(path string) (core.ProjectSyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.ProjectSyncConfig{}, err
	}

	var cfg core.ProjectSyncConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return core.ProjectSyncConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
