package stash

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/stash/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

const articleColumns = `url, title, description, featured_image, domain, tags, notes,
       archived, favorite, timestamp, edited_at, deleted_at, sync_status`

// Store manages the local SQLite article database and the durable
// outgoing-change queue. It owns Article and SyncOperation lifetimes
// exclusively; higher layers never touch SQL.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewStore opens or creates a local article store.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, schemaVersion)
	return err
}

// Ping performs a trial read against the database. The orchestrator uses it
// as its precondition and post-sync verification check.
func (s *Store) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	var one int
	if err := s.db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// UpsertArticle atomically writes an article and its queued sync operation in
// one transaction. A nil op skips queueing (used when applying remote state).
func (s *Store) UpsertArticle(a Article, op *SyncOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	if err := upsertArticleTx(tx, a); err != nil {
		return err
	}
	if op != nil {
		if err := enqueueTx(tx, *op); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertArticles writes a batch of articles in one transaction without
// queueing. The orchestrator uses it to apply merged remote winners.
func (s *Store) UpsertArticles(articles []Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if len(articles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range articles {
		if err := upsertArticleTx(tx, a); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func upsertArticleTx(tx *sql.Tx, a Article) error {
	_, err := tx.Exec(`
		INSERT INTO articles (url, title, description, featured_image, domain, tags, notes,
		                      archived, favorite, timestamp, edited_at, deleted_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			featured_image = excluded.featured_image,
			domain = excluded.domain,
			tags = excluded.tags,
			notes = excluded.notes,
			archived = excluded.archived,
			favorite = excluded.favorite,
			timestamp = excluded.timestamp,
			edited_at = excluded.edited_at,
			deleted_at = excluded.deleted_at,
			sync_status = excluded.sync_status
	`,
		a.URL,
		a.Title,
		nullString(a.Description),
		nullString(a.FeaturedImage),
		a.Domain,
		joinTags(a.Tags),
		nullString(a.Notes),
		boolToInt(a.Archived),
		boolToInt(a.Favorite),
		a.Timestamp,
		a.EditedAt,
		a.DeletedAt,
		string(a.SyncStatus),
	)
	if err != nil {
		return fmt.Errorf("store: upsert article: %w", err)
	}
	return nil
}

func enqueueTx(tx *sql.Tx, op SyncOperation) error {
	var payload []byte
	if op.Article != nil {
		var err error
		payload, err = json.Marshal(op.Article)
		if err != nil {
			return fmt.Errorf("store: marshal operation payload: %w", err)
		}
	}

	_, err := tx.Exec(`
		INSERT INTO sync_queue (id, op_type, article_url, payload, queued_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, op.ID, string(op.Type), op.ArticleURL, payload, op.Timestamp, op.RetryCount)
	if err != nil {
		return fmt.Errorf("store: enqueue sync operation: %w", err)
	}
	return nil
}

// GetArticle retrieves an article by URL. Soft-deleted articles are only
// returned when includeDeleted is set.
func (s *Store) GetArticle(url string, includeDeleted bool) (*Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query := "SELECT " + articleColumns + " FROM articles WHERE url = ?"
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	return scanArticle(s.db.QueryRow(query, url))
}

// ListArticles returns up to limit filtered articles ordered by
// (timestamp, url) in the given direction, starting strictly after cursor.
func (s *Store) ListArticles(f Filters, limit int, cursor *Cursor, order SortOrder) ([]Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	where, args := buildFilterClauses(f)

	if cursor != nil {
		// Strict inequality on the (timestamp, url) pair keeps pages
		// duplicate-free even when many rows share one timestamp.
		if order == SortAsc {
			where = append(where, "(timestamp > ? OR (timestamp = ? AND url > ?))")
		} else {
			where = append(where, "(timestamp < ? OR (timestamp = ? AND url < ?))")
		}
		args = append(args, cursor.Timestamp, cursor.Timestamp, cursor.URL)
	}

	dir := "DESC"
	if order == SortAsc {
		dir = "ASC"
	}

	query := fmt.Sprintf(
		"SELECT %s FROM articles WHERE %s ORDER BY timestamp %s, url %s LIMIT ?",
		articleColumns, strings.Join(where, " AND "), dir, dir,
	)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list articles: %w", err)
	}
	defer rows.Close()

	var results []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *a)
	}

	return results, rows.Err()
}

// AllArticles returns every non-deleted article. Used by the search scorer,
// which scans the full set.
func (s *Store) AllArticles() ([]Article, error) {
	return s.ListArticles(Filters{}, -1, nil, SortDesc)
}

// CountArticles returns the number of articles matching the filters.
func (s *Store) CountArticles(f Filters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	where, args := buildFilterClauses(f)
	query := "SELECT COUNT(*) FROM articles WHERE " + strings.Join(where, " AND ")

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count articles: %w", err)
	}
	return count, nil
}

func buildFilterClauses(f Filters) ([]string, []any) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}

	if f.Archived != nil {
		where = append(where, "archived = ?")
		args = append(args, boolToInt(*f.Archived))
	}
	if f.Favorite != nil {
		where = append(where, "favorite = ?")
		args = append(args, boolToInt(*f.Favorite))
	}
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, f.Domain)
	}
	if f.SyncStatus != "" {
		where = append(where, "sync_status = ?")
		args = append(args, string(f.SyncStatus))
	}
	if len(f.Tags) > 0 {
		// any-of match over the comma-joined tags column
		ors := make([]string, len(f.Tags))
		for i, tag := range f.Tags {
			ors[i] = "(',' || COALESCE(tags, '') || ',') LIKE ?"
			args = append(args, "%,"+tag+",%")
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	return where, args
}

// DeleteArticleLocal hard-removes an article without queueing an outgoing
// operation. Used by the orchestrator to finalize confirmed remote deletes.
func (s *Store) DeleteArticleLocal(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec("DELETE FROM articles WHERE url = ?", url)
	if err != nil {
		return fmt.Errorf("store: delete article: %w", err)
	}
	return nil
}

// MarkSynced flips the given articles to synced without queueing.
func (s *Store) MarkSynced(urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if len(urls) == 0 {
		return nil
	}

	placeholders := make([]string, len(urls))
	args := []any{string(SyncStatusSynced)}
	for i, u := range urls {
		placeholders[i] = "?"
		args = append(args, u)
	}

	query := fmt.Sprintf("UPDATE articles SET sync_status = ? WHERE url IN (%s)", strings.Join(placeholders, ","))
	_, err := s.db.Exec(query, args...)
	return err
}

// PendingOperations returns the outgoing queue in enqueue order. Ordering
// rides on the implicit rowid: queued_at has millisecond resolution and
// same-instant enqueues must not reorder.
func (s *Store) PendingOperations() ([]SyncOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, op_type, article_url, payload, queued_at, retry_count
		FROM sync_queue ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list operations: %w", err)
	}
	defer rows.Close()

	var ops []SyncOperation
	for rows.Next() {
		var (
			op      SyncOperation
			opType  string
			payload []byte
		)
		if err := rows.Scan(&op.ID, &opType, &op.ArticleURL, &payload, &op.Timestamp, &op.RetryCount); err != nil {
			return nil, err
		}
		op.Type = OperationType(opType)
		if len(payload) > 0 {
			var a Article
			if err := json.Unmarshal(payload, &a); err != nil {
				return nil, fmt.Errorf("store: unmarshal operation payload: %w", err)
			}
			op.Article = &a
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// RemoveOperation deletes a queue entry by id.
func (s *Store) RemoveOperation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.Exec("DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: remove operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOperationNotFound
	}
	return nil
}

// IncrementRetry bumps a queue entry's retry count and returns the new value.
func (s *Store) IncrementRetry(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.Exec("UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("store: increment retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrOperationNotFound
	}

	var count int
	if err := s.db.QueryRow("SELECT retry_count FROM sync_queue WHERE id = ?", id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// PendingOperationCount returns the outgoing queue length.
func (s *Store) PendingOperationCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// PendingArticleCount returns the number of articles still marked pending.
func (s *Store) PendingArticleCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM articles WHERE sync_status = ? AND deleted_at IS NULL",
		string(SyncStatusPending),
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RemoveStaleOperations drops queue entries queued before cutoff that have
// already used at least minRetries attempts. Returns the number removed.
// This is the orchestrator's bounded recovery pass after a failed cycle.
func (s *Store) RemoveStaleOperations(cutoff int64, minRetries int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.Exec(
		"DELETE FROM sync_queue WHERE queued_at < ? AND retry_count >= ?",
		cutoff, minRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("store: remove stale operations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetMetadata retrieves a metadata value. Returns "" when the key is absent.
func (s *Store) GetMetadata(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata stores a metadata value.
func (s *Store) SetMetadata(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Stats returns store statistics.
func (s *Store) Stats() (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM articles WHERE deleted_at IS NULL").Scan(&count); err != nil {
		return nil, err
	}

	var pending int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&pending); err != nil {
		return nil, err
	}

	var lastSyncStr sql.NullString
	s.db.QueryRow("SELECT value FROM metadata WHERE key = 'last_sync'").Scan(&lastSyncStr)

	var lastSync time.Time
	if lastSyncStr.Valid {
		lastSync, _ = time.Parse(time.RFC3339, lastSyncStr.String)
	}

	return &StoreStats{
		ArticleCount:  count,
		PendingSync:   pending,
		LastSync:      lastSync,
		SchemaVersion: schemaVersion,
	}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(sc scanner) (*Article, error) {
	var (
		a             Article
		description   sql.NullString
		featuredImage sql.NullString
		tags          sql.NullString
		notes         sql.NullString
		archived      int
		favorite      int
		editedAt      sql.NullInt64
		deletedAt     sql.NullInt64
		syncStatus    string
	)

	err := sc.Scan(
		&a.URL,
		&a.Title,
		&description,
		&featuredImage,
		&a.Domain,
		&tags,
		&notes,
		&archived,
		&favorite,
		&a.Timestamp,
		&editedAt,
		&deletedAt,
		&syncStatus,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if description.Valid {
		a.Description = description.String
	}
	if featuredImage.Valid {
		a.FeaturedImage = featuredImage.String
	}
	if tags.Valid && tags.String != "" {
		a.Tags = strings.Split(tags.String, ",")
	}
	if notes.Valid {
		a.Notes = notes.String
	}
	a.Archived = archived != 0
	a.Favorite = favorite != 0
	if editedAt.Valid {
		v := editedAt.Int64
		a.EditedAt = &v
	}
	if deletedAt.Valid {
		v := deletedAt.Int64
		a.DeletedAt = &v
	}
	a.SyncStatus = SyncStatus(syncStatus)

	return &a, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func joinTags(tags []string) *string {
	if len(tags) == 0 {
		return nil
	}
	joined := strings.Join(tags, ",")
	return &joined
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
