package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperengineering/stash"
	"github.com/spf13/cobra"
)

// outputArticle prints a single article in the configured format.
func outputArticle(cmd *cobra.Command, a *stash.Article) error {
	if outputJSON {
		return outputAsJSON(cmd, a)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", styleTitle(a.Title))
	printLabel(out, "  url:    ")
	fmt.Fprintf(out, "%s\n", a.URL)
	printLabel(out, "  domain: ")
	fmt.Fprintf(out, "%s\n", styleDomain(a.Domain))
	printLabel(out, "  saved:  ")
	fmt.Fprintf(out, "%s\n", time.UnixMilli(a.Timestamp).Format(time.RFC3339))
	if len(a.Tags) > 0 {
		printLabel(out, "  tags:   ")
		fmt.Fprintf(out, "%s\n", strings.Join(a.Tags, ", "))
	}
	if a.Notes != "" {
		printLabel(out, "  notes:  ")
		fmt.Fprintf(out, "%s\n", renderMarkdown(a.Notes))
	}
	printLabel(out, "  status: ")
	fmt.Fprintf(out, "%s%s%s\n", a.SyncStatus, flagSuffix(a.Archived, " [archived]"), flagSuffix(a.Favorite, " [favorite]"))
	return nil
}

// outputPage prints a page of articles plus the continuation cursor.
func outputPage(cmd *cobra.Command, page *stash.Page) error {
	if outputJSON {
		return outputAsJSON(cmd, page)
	}

	out := cmd.OutOrStdout()
	if len(page.Articles) == 0 {
		printWarning(out, "No articles found.")
		printMuted(out, "Save one with: stash save <url> --title <title>")
		return nil
	}

	for _, a := range page.Articles {
		marker := " "
		switch {
		case a.Favorite:
			marker = iconFavorite
		case a.SyncStatus == stash.SyncStatusPending:
			marker = iconPending
		}
		// Pad before styling: ANSI codes would break column widths.
		title := styleTitle(fmt.Sprintf("%-40.40s", a.Title))
		domain := styleDomain(fmt.Sprintf("%-30.30s", a.Domain))
		fmt.Fprintf(out, "%s %s  %s  %s\n",
			marker, title, domain,
			time.UnixMilli(a.Timestamp).Format("2006-01-02"))
	}

	if page.HasMore && page.NextCursor != nil {
		fmt.Fprintln(out)
		printMuted(out, "More results: --cursor %s", page.NextCursor.Encode())
	}
	return nil
}

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to stderr, ensuring no credentials leak.
func outputError(w io.Writer, err error) {
	msg := err.Error()
	if cfgToken != "" && strings.Contains(msg, cfgToken) {
		msg = strings.ReplaceAll(msg, cfgToken, "[REDACTED]")
	}
	printError(w, "%s", msg)
}

func flagSuffix(set bool, suffix string) string {
	if set {
		return suffix
	}
	return ""
}
