package stash

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Repository is the query and mutation layer over the local store. Every
// local mutation enqueues an outgoing sync operation in the same transaction
// as the article write, so the queue can never diverge from local truth.
type Repository struct {
	store *Store
	log   *DebugLogger

	countMu    sync.Mutex
	countCache map[string]countEntry
}

type countEntry struct {
	count   int
	expires time.Time
}

// NewRepository creates a repository over the given store.
func NewRepository(store *Store, log *DebugLogger) *Repository {
	return &Repository{
		store:      store,
		log:        log,
		countCache: make(map[string]countEntry),
	}
}

// GetPaginated returns one page of filtered articles in (timestamp, url)
// order. It fetches limit+1 rows to detect hasMore without a count query.
func (r *Repository) GetPaginated(f Filters, opts ListOptions) (*Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	order := opts.SortOrder
	if order == "" {
		order = SortDesc
	}

	rows, err := r.store.ListArticles(f, limit+1, opts.Cursor, order)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	page.Articles = rows
	if page.HasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextCursor = &Cursor{Timestamp: last.Timestamp, URL: last.URL}
	}

	return page, nil
}

// GetByURL retrieves a single article.
func (r *Repository) GetByURL(url string) (*Article, error) {
	return r.store.GetArticle(url, false)
}

// Save upserts an article and enqueues the matching outgoing operation. The
// operation type reflects pre-existence: update if the key was already
// present, create otherwise. EditedAt is not stamped on the save path.
func (r *Repository) Save(a Article) (*Article, error) {
	if a.URL == "" {
		return nil, ErrEmptyURL
	}
	if a.Title == "" {
		return nil, ErrEmptyTitle
	}
	if a.Timestamp == 0 {
		a.Timestamp = nowMillis()
	}
	if a.Domain == "" {
		a.Domain = domainFromURL(a.URL)
	}
	a.SyncStatus = SyncStatusPending
	a.DeletedAt = nil

	opType := OpCreate
	if existing, err := r.store.GetArticle(a.URL, true); err == nil && existing != nil {
		opType = OpUpdate
	} else if err != nil && err != ErrNotFound {
		return nil, err
	}

	op := r.newOperation(opType, a.URL, &a)
	if err := r.store.UpsertArticle(a, &op); err != nil {
		return nil, err
	}
	r.invalidateCounts()

	return &a, nil
}

// Update merges partial fields into an existing article, stamps EditedAt, and
// enqueues an update operation.
func (r *Repository) Update(url string, upd ArticleUpdate) (*Article, error) {
	existing, err := r.store.GetArticle(url, false)
	if err != nil {
		return nil, err
	}

	a := *existing
	applyUpdate(&a, upd)
	now := nowMillis()
	a.EditedAt = &now
	a.SyncStatus = SyncStatusPending

	op := r.newOperation(OpUpdate, a.URL, &a)
	if err := r.store.UpsertArticle(a, &op); err != nil {
		return nil, err
	}
	r.invalidateCounts()

	return &a, nil
}

// Delete soft-deletes an article and enqueues a delete operation. The row is
// hard-removed only after the remote delete is confirmed (DeleteLocalOnly).
func (r *Repository) Delete(url string) error {
	existing, err := r.store.GetArticle(url, false)
	if err != nil {
		return err
	}

	a := *existing
	now := nowMillis()
	a.DeletedAt = &now
	a.SyncStatus = SyncStatusPending

	op := r.newOperation(OpDelete, a.URL, nil)
	if err := r.store.UpsertArticle(a, &op); err != nil {
		return err
	}
	r.invalidateCounts()

	return nil
}

// Restore clears the soft-delete marker and queues an update so the remote
// copy is re-created on the next sync.
func (r *Repository) Restore(url string) (*Article, error) {
	existing, err := r.store.GetArticle(url, true)
	if err != nil {
		return nil, err
	}
	if existing.DeletedAt == nil {
		return existing, nil
	}

	a := *existing
	a.DeletedAt = nil
	now := nowMillis()
	a.EditedAt = &now
	a.SyncStatus = SyncStatusPending

	op := r.newOperation(OpUpdate, a.URL, &a)
	if err := r.store.UpsertArticle(a, &op); err != nil {
		return nil, err
	}
	r.invalidateCounts()

	return &a, nil
}

// BulkUpdate applies the same partial update to several articles, queueing
// one operation per article.
func (r *Repository) BulkUpdate(urls []string, upd ArticleUpdate) ([]Article, error) {
	updated := make([]Article, 0, len(urls))
	for _, u := range urls {
		a, err := r.Update(u, upd)
		if err != nil {
			return updated, fmt.Errorf("bulk update %s: %w", u, err)
		}
		updated = append(updated, *a)
	}
	return updated, nil
}

// DeleteLocalOnly removes an article without queueing an outgoing
// operation. Orchestrator use only: applying remote-confirmed deletes must
// not re-trigger outbound sync.
func (r *Repository) DeleteLocalOnly(url string) error {
	if err := r.store.DeleteArticleLocal(url); err != nil {
		return err
	}
	r.invalidateCounts()
	return nil
}

// MarkAsSynced flips articles to synced without queueing.
func (r *Repository) MarkAsSynced(urls []string) error {
	if err := r.store.MarkSynced(urls); err != nil {
		return err
	}
	r.invalidateCounts()
	return nil
}

// ApplyRemoteState writes a batch of merge winners as one transaction, all
// marked synced, without queueing.
func (r *Repository) ApplyRemoteState(articles []Article) error {
	for i := range articles {
		articles[i].SyncStatus = SyncStatusSynced
	}
	if err := r.store.UpsertArticles(articles); err != nil {
		return err
	}
	r.invalidateCounts()
	return nil
}

// GetPendingSyncOperations returns the outgoing queue in enqueue order.
func (r *Repository) GetPendingSyncOperations() ([]SyncOperation, error) {
	return r.store.PendingOperations()
}

// RemoveSyncOperation deletes a queue entry.
func (r *Repository) RemoveSyncOperation(id string) error {
	return r.store.RemoveOperation(id)
}

// IncrementSyncRetryCount bumps a queue entry's retry count and returns the
// new value.
func (r *Repository) IncrementSyncRetryCount(id string) (int, error) {
	return r.store.IncrementRetry(id)
}

// GetPendingArticlesCount returns the number of articles awaiting sync.
func (r *Repository) GetPendingArticlesCount() (int, error) {
	return r.store.PendingArticleCount()
}

// Ping checks local store reachability with a trial read.
func (r *Repository) Ping() error {
	return r.store.Ping()
}

// Checkpoint returns the current article and queue counts, bypassing the
// count cache. The orchestrator compares these across a cycle.
func (r *Repository) Checkpoint() (articles, queued int, err error) {
	articles, err = r.store.CountArticles(Filters{})
	if err != nil {
		return 0, 0, err
	}
	queued, err = r.store.PendingOperationCount()
	if err != nil {
		return 0, 0, err
	}
	return articles, queued, nil
}

// SetLastSync records the last successful sync instant.
func (r *Repository) SetLastSync(t time.Time) error {
	return r.store.SetMetadata("last_sync", t.Format(time.RFC3339))
}

// RecoverStaleOperations drops queue entries queued before cutoff (ms since
// epoch) that already exhausted their retry budget.
func (r *Repository) RecoverStaleOperations(cutoff int64) (int, error) {
	return r.store.RemoveStaleOperations(cutoff, MaxOperationAttempts-1)
}

// GetCount returns the number of articles matching the filters, memoized for
// a short window per filter set. Any mutation invalidates the whole cache.
func (r *Repository) GetCount(f Filters) (int, error) {
	key := filterKey(f)

	r.countMu.Lock()
	if entry, ok := r.countCache[key]; ok && time.Now().Before(entry.expires) {
		r.countMu.Unlock()
		return entry.count, nil
	}
	r.countMu.Unlock()

	count, err := r.store.CountArticles(f)
	if err != nil {
		return 0, err
	}

	r.countMu.Lock()
	r.countCache[key] = countEntry{count: count, expires: time.Now().Add(countCacheDuration)}
	r.countMu.Unlock()

	return count, nil
}

func (r *Repository) invalidateCounts() {
	r.countMu.Lock()
	r.countCache = make(map[string]countEntry)
	r.countMu.Unlock()
}

func (r *Repository) newOperation(t OperationType, url string, snapshot *Article) SyncOperation {
	return SyncOperation{
		ID:         ulid.Make().String(),
		Type:       t,
		ArticleURL: url,
		Article:    snapshot,
		Timestamp:  nowMillis(),
	}
}

func applyUpdate(a *Article, upd ArticleUpdate) {
	if upd.Title != nil {
		a.Title = *upd.Title
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	if upd.FeaturedImage != nil {
		a.FeaturedImage = *upd.FeaturedImage
	}
	if upd.Domain != nil {
		a.Domain = *upd.Domain
	}
	if upd.Tags != nil {
		a.Tags = *upd.Tags
	}
	if upd.Notes != nil {
		a.Notes = *upd.Notes
	}
	if upd.Archived != nil {
		a.Archived = *upd.Archived
	}
	if upd.Favorite != nil {
		a.Favorite = *upd.Favorite
	}
}

func filterKey(f Filters) string {
	var b strings.Builder
	if f.Archived != nil {
		fmt.Fprintf(&b, "a=%t;", *f.Archived)
	}
	if f.Favorite != nil {
		fmt.Fprintf(&b, "f=%t;", *f.Favorite)
	}
	if f.Domain != "" {
		fmt.Fprintf(&b, "d=%s;", f.Domain)
	}
	if f.SyncStatus != "" {
		fmt.Fprintf(&b, "s=%s;", f.SyncStatus)
	}
	if len(f.Tags) > 0 {
		sorted := append([]string(nil), f.Tags...)
		sort.Strings(sorted)
		fmt.Fprintf(&b, "t=%s;", strings.Join(sorted, ","))
	}
	return b.String()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// domainFromURL extracts the hostname, stripping a leading www prefix.
func domainFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
