package main

import (
	"fmt"

	"github.com/hyperengineering/stash"
	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save <url>",
	Short: "Save an article",
	Long: `Save an article to the local store. The change is queued and pushed
to the remote store on the next sync.

Example:
  stash save https://example.com/article --title "Worth reading"
  stash save https://go.dev/blog/pgo --title "PGO in Go" --tags go,performance`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

var (
	saveTitle       string
	saveDescription string
	saveImage       string
	saveTags        []string
	saveNotes       string
	saveArchived    bool
	saveFavorite    bool
)

func init() {
	saveCmd.Flags().StringVar(&saveTitle, "title", "", "Article title (required)")
	saveCmd.Flags().StringVar(&saveDescription, "description", "", "Short description")
	saveCmd.Flags().StringVar(&saveImage, "image", "", "Featured image URL")
	saveCmd.Flags().StringSliceVar(&saveTags, "tags", nil, "Comma-separated tags")
	saveCmd.Flags().StringVar(&saveNotes, "notes", "", "Personal notes")
	saveCmd.Flags().BoolVar(&saveArchived, "archived", false, "Save as archived")
	saveCmd.Flags().BoolVar(&saveFavorite, "favorite", false, "Save as favorite")

	saveCmd.MarkFlagRequired("title")
}

func runSave(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	article, err := client.Repository().Save(stash.Article{
		URL:           args[0],
		Title:         saveTitle,
		Description:   saveDescription,
		FeaturedImage: saveImage,
		Tags:          saveTags,
		Notes:         saveNotes,
		Archived:      saveArchived,
		Favorite:      saveFavorite,
	})
	if err != nil {
		return fmt.Errorf("save article: %w", err)
	}

	return outputArticle(cmd, article)
}
