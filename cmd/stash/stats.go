package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long: `Display statistics about the local article store.

Example:
  stash stats
  stash stats --health`,
	RunE: runStats,
}

var statsHealth bool

func init() {
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "Include health check")
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := client.Stats()
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if outputJSON && !statsHealth {
		return outputAsJSON(cmd, stats)
	}

	out := cmd.OutOrStdout()
	printInfo(out, "Local Store Statistics")
	printLabel(out, "Articles:       ")
	fmt.Fprintf(out, "%d\n", stats.ArticleCount)
	printLabel(out, "Pending sync:   ")
	fmt.Fprintf(out, "%d\n", stats.PendingSync)
	printLabel(out, "Schema version: ")
	fmt.Fprintf(out, "%s\n", stats.SchemaVersion)

	printLabel(out, "Last sync:      ")
	if !stats.LastSync.IsZero() {
		fmt.Fprintf(out, "%s (%s ago)\n",
			stats.LastSync.Format(time.RFC3339),
			time.Since(stats.LastSync).Round(time.Minute))
	} else {
		fmt.Fprintln(out, "never")
	}

	if statsHealth {
		fmt.Fprintln(out)
		printInfo(out, "Health Check")

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		health := client.HealthCheck(ctx)

		if health.Healthy {
			printSuccess(out, "Status: healthy")
		} else {
			printError(out, "Status: unhealthy")
		}
		printLabel(out, "Store OK:         ")
		fmt.Fprintf(out, "%v\n", health.StoreOK)
		printLabel(out, "Remote reachable: ")
		fmt.Fprintf(out, "%v\n", health.RemoteReachable)

		if health.Error != "" {
			printWarning(out, "%s", health.Error)
		}
	}

	return nil
}
