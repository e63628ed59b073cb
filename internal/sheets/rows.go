package sheets

import (
	"strings"
	"time"

	"github.com/hyperengineering/stash"
)

// The remote table is a flat 11-column contract with a fixed column order
// and a required header row. Absent optional fields serialize as empty
// strings, never null.
const (
	colURL = iota
	colTitle
	colTags
	colNotes
	colDescription
	colFeaturedImage
	colTimestamp
	colDomain
	colArchived
	colFavorite
	colEditedAt
	columnCount
)

// HeaderRow is the fixed header written to row 1 of the backing sheet.
var HeaderRow = []string{
	"URL", "Title", "Tags", "Notes", "Description", "Featured Image",
	"Timestamp", "Domain", "Archived", "Favorite", "Edited At",
}

// articleToRow serializes an article into the flat column contract.
func articleToRow(a stash.Article) []string {
	row := make([]string, columnCount)
	row[colURL] = a.URL
	row[colTitle] = a.Title
	row[colTags] = strings.Join(a.Tags, ",")
	row[colNotes] = a.Notes
	row[colDescription] = a.Description
	row[colFeaturedImage] = a.FeaturedImage
	row[colTimestamp] = formatInstant(a.Timestamp)
	row[colDomain] = a.Domain
	row[colArchived] = formatFlag(a.Archived)
	row[colFavorite] = formatFlag(a.Favorite)
	if a.EditedAt != nil {
		row[colEditedAt] = formatInstant(*a.EditedAt)
	}
	return row
}

// rowToArticle deserializes one data row. Short rows are tolerated (missing
// trailing columns read as empty); shape validation of the result is the
// caller's concern.
func rowToArticle(row []string) stash.Article {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	a := stash.Article{
		URL:           get(colURL),
		Title:         get(colTitle),
		Notes:         get(colNotes),
		Description:   get(colDescription),
		FeaturedImage: get(colFeaturedImage),
		Domain:        get(colDomain),
		Archived:      get(colArchived) == "1",
		Favorite:      get(colFavorite) == "1",
		Timestamp:     parseInstant(get(colTimestamp)),
		SyncStatus:    stash.SyncStatusSynced,
	}
	if tags := get(colTags); tags != "" {
		a.Tags = strings.Split(tags, ",")
	}
	if edited := get(colEditedAt); edited != "" {
		ms := parseInstant(edited)
		a.EditedAt = &ms
	}
	return a
}

func formatInstant(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func parseInstant(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return ""
}
