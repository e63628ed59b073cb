package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <url>",
	Short: "Delete an article",
	Long: `Delete an article. The article disappears from listings immediately
and the deletion is pushed to the remote store on the next sync.

Example:
  stash delete https://example.com/article`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <url>",
	Short: "Restore a deleted article",
	Long: `Restore an article deleted locally but not yet confirmed by the
remote store.

Example:
  stash restore https://example.com/article`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func runDelete(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Repository().Delete(args[0]); err != nil {
		return fmt.Errorf("delete article: %w", err)
	}

	printSuccess(cmd.OutOrStdout(), "Deleted %s", args[0])
	printMuted(cmd.OutOrStdout(), "Removal reaches the remote store on the next sync.")
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	article, err := client.Repository().Restore(args[0])
	if err != nil {
		return fmt.Errorf("restore article: %w", err)
	}

	return outputArticle(cmd, article)
}
