package main

import (
	"fmt"
	"os"

	"github.com/hyperengineering/stash"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import articles from a JSON export",
	Long: `Import articles from a JSON export file.

Merge strategies:
  merge    upsert entries by URL (default)
  skip     leave existing entries untouched
  replace  overwrite existing entries completely

Examples:
  stash import backup.json
  stash import backup.json --strategy skip
  stash import backup.json --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importStrategy string
	importDryRun   bool
)

func init() {
	importCmd.Flags().StringVar(&importStrategy, "strategy", "merge", "Merge strategy: merge, skip, replace")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview without writing")
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy := stash.MergeStrategy(importStrategy)
	switch strategy {
	case stash.MergeStrategyMerge, stash.MergeStrategySkip, stash.MergeStrategyReplace:
	default:
		return fmt.Errorf("invalid strategy %q: must be 'merge', 'skip', or 'replace'", importStrategy)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()

	var result *stash.ImportResult
	err = runWithSpinner(out, "Importing articles", func() error {
		result, err = client.Store().ImportJSON(cmd.Context(), f, strategy, importDryRun)
		return err
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	fmt.Fprintf(out, "Total:   %d\n", result.Total)
	fmt.Fprintf(out, "Created: %d\n", result.Created)
	fmt.Fprintf(out, "Merged:  %d\n", result.Merged)
	fmt.Fprintf(out, "Skipped: %d\n", result.Skipped)
	if len(result.Errors) > 0 {
		printWarning(out, "Errors encountered:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
	}
	if importDryRun {
		printMuted(out, "Dry-run complete. No changes made.")
	} else {
		printSuccess(out, "Import complete.")
	}
	return nil
}
