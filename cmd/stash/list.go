package main

import (
	"fmt"

	"github.com/hyperengineering/stash"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved articles",
	Long: `List articles from the local store, newest first.

Pages are keyed by an opaque cursor printed with each page, so listings
stay stable while articles are added or removed.

Example:
  stash list --limit 20
  stash list --favorite --tag go
  stash list --cursor 1714680000000:https://example.com/a`,
	RunE: runList,
}

var (
	listLimit    int
	listCursor   string
	listAsc      bool
	listArchived bool
	listFavorite bool
	listDomain   string
	listTags     []string
	listPending  bool
)

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", stash.DefaultPageSize, "Maximum articles per page")
	listCmd.Flags().StringVar(&listCursor, "cursor", "", "Continuation cursor from a previous page")
	listCmd.Flags().BoolVar(&listAsc, "asc", false, "Oldest first")
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "Only archived articles")
	listCmd.Flags().BoolVar(&listFavorite, "favorite", false, "Only favorite articles")
	listCmd.Flags().StringVar(&listDomain, "domain", "", "Only articles from this domain")
	listCmd.Flags().StringSliceVar(&listTags, "tag", nil, "Only articles with any of these tags")
	listCmd.Flags().BoolVar(&listPending, "pending", false, "Only articles awaiting sync")
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	opts := stash.ListOptions{Limit: listLimit}
	if listAsc {
		opts.SortOrder = stash.SortAsc
	}
	if listCursor != "" {
		cursor, err := stash.ParseCursor(listCursor)
		if err != nil {
			return fmt.Errorf("invalid cursor: %w", err)
		}
		opts.Cursor = cursor
	}

	var filters stash.Filters
	if cmd.Flags().Changed("archived") {
		filters.Archived = &listArchived
	}
	if cmd.Flags().Changed("favorite") {
		filters.Favorite = &listFavorite
	}
	filters.Domain = listDomain
	filters.Tags = listTags
	if listPending {
		filters.SyncStatus = stash.SyncStatusPending
	}

	page, err := client.Repository().GetPaginated(filters, opts)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	return outputPage(cmd, page)
}
