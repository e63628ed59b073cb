package stash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ImportJSON imports articles from a JSON export file.
// It uses streaming to handle large files without loading everything
// into memory.
//
// Note: this holds the store's write lock for the entire duration of
// the import. Use dryRun=true first to preview the import scope.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	dec := json.NewDecoder(r)
	result := &ImportResult{}

	token, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected opening brace, got %v", token)
	}

	var version string
	for dec.More() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		token, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read field name: %w", err)
		}

		fieldName, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", token)
		}

		switch fieldName {
		case "version":
			if err := dec.Decode(&version); err != nil {
				return nil, fmt.Errorf("decode version: %w", err)
			}
			if version != ExportVersion {
				return nil, fmt.Errorf("unsupported export version %q (expected %q)", version, ExportVersion)
			}

		case "exported_at":
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return nil, fmt.Errorf("decode %s: %w", fieldName, err)
			}

		case "articles":
			if err := s.importArticleArray(ctx, dec, strategy, dryRun, result); err != nil {
				return result, fmt.Errorf("import articles: %w", err)
			}

		default:
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return nil, fmt.Errorf("decode unknown field %s: %w", fieldName, err)
			}
		}
	}

	if version == "" {
		return nil, fmt.Errorf("missing version field in export file")
	}

	return result, nil
}

// importArticleArray processes the articles array from the JSON stream.
func (s *Store) importArticleArray(ctx context.Context, dec *json.Decoder, strategy MergeStrategy, dryRun bool, result *ImportResult) error {
	token, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read array start: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected articles array, got %v", token)
	}

	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var entry ExportArticle
		if err := dec.Decode(&entry); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("decode article: %v", err))
			continue
		}
		result.Total++

		if entry.URL == "" || entry.Title == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("invalid article %q: missing url or title", entry.URL))
			continue
		}

		exists, err := s.articleExistsUnlocked(entry.URL)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("check existence %s: %v", entry.URL, err))
			continue
		}

		if dryRun {
			if exists {
				switch strategy {
				case MergeStrategySkip:
					result.Skipped++
				case MergeStrategyReplace, MergeStrategyMerge:
					result.Merged++
				}
			} else {
				result.Created++
			}
			continue
		}

		created, err := s.importArticleEntry(&entry, strategy, exists)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("import %s: %v", entry.URL, err))
			continue
		}

		if created {
			result.Created++
		} else if strategy == MergeStrategySkip && exists {
			result.Skipped++
		} else {
			result.Merged++
		}
	}

	token, err = dec.Token()
	if err != nil {
		return fmt.Errorf("read array end: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != ']' {
		return fmt.Errorf("expected articles array end, got %v", token)
	}

	return nil
}

// articleExistsUnlocked checks if an article exists (caller must hold lock).
func (s *Store) articleExistsUnlocked(url string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM articles WHERE url = ? AND deleted_at IS NULL", url).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// importArticleEntry imports a single article based on the merge strategy.
// Returns true if the entry was created (new), false if merged or skipped.
// Imports never touch the outgoing queue.
func (s *Store) importArticleEntry(entry *ExportArticle, strategy MergeStrategy, exists bool) (bool, error) {
	if exists && strategy == MergeStrategySkip {
		return false, nil
	}

	a, err := exportToArticle(entry)
	if err != nil {
		return false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertArticleTx(tx, *a); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return !exists, nil
}
