package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/stash"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote store",
	Long: `Run one sync cycle: push queued local changes, then pull and merge
remote state.

Example:
  stash sync`,
	RunE: runSync,
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Check or establish remote credentials",
	Long: `Verify the remote credential, completing a pending authentication
redirect if one is waiting. Triggers the external auth flow otherwise.

Example:
  stash auth`,
	RunE: runAuth,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.IsOffline() {
		return fmt.Errorf("no remote store configured (set --sheets-url or STASH_SHEETS_URL)")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), stash.SyncTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	start := time.Now()

	err = runWithSpinner(out, "Syncing with remote store", func() error {
		return client.Sync(ctx)
	})
	if err != nil {
		if errors.Is(err, stash.ErrAuthRequired) {
			return fmt.Errorf("authentication required: run 'stash auth' first")
		}
		return fmt.Errorf("sync: %w", err)
	}

	state := client.State()
	printSuccess(out, "Sync complete (took %s, %d pending)",
		time.Since(start).Round(time.Millisecond), state.PendingCount)
	return nil
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.IsOffline() {
		return fmt.Errorf("no remote store configured (set --sheets-url or STASH_SHEETS_URL)")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Authenticate(cmd.Context())
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	switch result {
	case stash.AuthOK:
		printSuccess(cmd.OutOrStdout(), "Authenticated.")
	case stash.AuthRedirecting:
		printInfo(cmd.OutOrStdout(), "Authentication flow started.")
		printMuted(cmd.OutOrStdout(), "Complete it externally and run 'stash auth' again.")
	}
	return nil
}
