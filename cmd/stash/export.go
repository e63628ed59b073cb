package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export articles to a file",
	Long: `Export all articles to a backup file.

Supports JSON (default) and SQLite formats. JSON exports stream rows
to avoid memory issues with large stores.

Examples:
  stash export -o backup.json
  stash export -o backup.db --format sqlite`,
	RunE: runExport,
}

var (
	exportOutputPath string
	exportFormat     string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json, sqlite")
	_ = exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFormat)
	if format != "json" && format != "sqlite" {
		return fmt.Errorf("invalid format %q: must be 'json' or 'sqlite'", exportFormat)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	start := time.Now()

	err = runWithSpinner(out, "Exporting articles", func() error {
		if format == "sqlite" {
			if err := client.Store().ExportSQLite(cmd.Context(), exportOutputPath); err != nil {
				return fmt.Errorf("export sqlite: %w", err)
			}
			return nil
		}

		f, err := os.Create(exportOutputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()

		if err := client.Store().ExportJSON(cmd.Context(), f); err != nil {
			_ = os.Remove(exportOutputPath)
			return fmt.Errorf("export json: %w", err)
		}
		return f.Sync()
	})
	if err != nil {
		return err
	}

	printSuccess(out, "Exported to %s (took %s)",
		exportOutputPath, time.Since(start).Round(time.Millisecond))
	return nil
}
