package stash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ExportFormat is the top-level structure for JSON exports.
type ExportFormat struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Articles   []ExportArticle `json:"articles"`
}

// ExportArticle is an article in export format. Instants are RFC 3339
// strings so exports stay readable and portable.
type ExportArticle struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	FeaturedImage string   `json:"featured_image,omitempty"`
	Domain        string   `json:"domain"`
	Tags          []string `json:"tags,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Archived      bool     `json:"archived,omitempty"`
	Favorite      bool     `json:"favorite,omitempty"`
	Timestamp     string   `json:"timestamp"`
	EditedAt      string   `json:"edited_at,omitempty"`
	SyncStatus    string   `json:"sync_status,omitempty"`
}

// MergeStrategy defines how to handle conflicts during import.
type MergeStrategy string

const (
	// MergeStrategySkip skips entries that already exist (by URL).
	MergeStrategySkip MergeStrategy = "skip"
	// MergeStrategyReplace replaces existing entries with imported versions.
	MergeStrategyReplace MergeStrategy = "replace"
	// MergeStrategyMerge upserts entries by URL (default).
	MergeStrategyMerge MergeStrategy = "merge"
)

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Merged  int      `json:"merged"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ExportJSON streams the non-deleted articles as JSON to the writer.
// Rows are iterated directly off the database to avoid holding the full
// set in memory.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	header := fmt.Sprintf(`{"version":"%s","exported_at":"%s","articles":[`,
		ExportVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE deleted_at IS NULL ORDER BY timestamp, url",
	)
	if err != nil {
		return fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	first := true

	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		a, err := scanArticle(rows)
		if err != nil {
			return fmt.Errorf("scan article: %w", err)
		}

		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write separator: %w", err)
			}
		}
		first = false

		if err := enc.Encode(articleToExport(a)); err != nil {
			return fmt.Errorf("encode article: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate articles: %w", err)
	}

	if _, err := io.WriteString(w, "]}"); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}

	return nil
}

// articleToExport converts an Article to its export representation.
func articleToExport(a *Article) ExportArticle {
	e := ExportArticle{
		URL:           a.URL,
		Title:         a.Title,
		Description:   a.Description,
		FeaturedImage: a.FeaturedImage,
		Domain:        a.Domain,
		Tags:          a.Tags,
		Notes:         a.Notes,
		Archived:      a.Archived,
		Favorite:      a.Favorite,
		Timestamp:     millisToRFC3339(a.Timestamp),
		SyncStatus:    string(a.SyncStatus),
	}
	if a.EditedAt != nil {
		e.EditedAt = millisToRFC3339(*a.EditedAt)
	}
	return e
}

// exportToArticle converts an export entry back to an Article.
func exportToArticle(e *ExportArticle) (*Article, error) {
	ts, err := rfc3339ToMillis(e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}

	a := &Article{
		URL:           e.URL,
		Title:         e.Title,
		Description:   e.Description,
		FeaturedImage: e.FeaturedImage,
		Domain:        e.Domain,
		Tags:          e.Tags,
		Notes:         e.Notes,
		Archived:      e.Archived,
		Favorite:      e.Favorite,
		Timestamp:     ts,
		SyncStatus:    SyncStatus(e.SyncStatus),
	}
	if a.SyncStatus == "" {
		a.SyncStatus = SyncStatusPending
	}
	if e.EditedAt != "" {
		edited, err := rfc3339ToMillis(e.EditedAt)
		if err != nil {
			return nil, fmt.Errorf("parse edited_at: %w", err)
		}
		a.EditedAt = &edited
	}
	return a, nil
}

func millisToRFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func rfc3339ToMillis(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// ExportSQLite exports the store to a SQLite database file.
// It performs a WAL checkpoint first to ensure consistency, then copies
// the database file.
func (s *Store) ExportSQLite(ctx context.Context, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint WAL: %w", err)
	}

	srcFile, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("copy database: %w", err)
	}

	return destFile.Sync()
}
