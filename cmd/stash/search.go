package main

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/stash"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search saved articles",
	Long: `Search articles by relevance across title, description, tags,
and domain. Recently saved matches rank slightly higher.

Example:
  stash search "javascript closures"
  stash search go --limit 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchLimit  int
	searchCursor string
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", stash.DefaultPageSize, "Maximum articles per page")
	searchCmd.Flags().StringVar(&searchCursor, "cursor", "", "Continuation cursor from a previous page")
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	opts := stash.ListOptions{Limit: searchLimit}
	if searchCursor != "" {
		cursor, err := stash.ParseCursor(searchCursor)
		if err != nil {
			return fmt.Errorf("invalid cursor: %w", err)
		}
		opts.Cursor = cursor
	}

	page, err := client.Repository().SearchPaginated(strings.Join(args, " "), opts)
	if err != nil {
		return fmt.Errorf("search articles: %w", err)
	}

	return outputPage(cmd, page)
}
