package stash

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Article represents a single saved bookmark. The URL is the stable primary
// key and must be normalized by the caller before it reaches the repository
// (tracking parameters stripped, fragments removed).
type Article struct {
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	FeaturedImage string     `json:"featured_image,omitempty"`
	Domain        string     `json:"domain"`
	Tags          []string   `json:"tags,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Archived      bool       `json:"archived"`
	Favorite      bool       `json:"favorite"`
	Timestamp     int64      `json:"timestamp"` // creation instant, ms since epoch
	EditedAt      *int64     `json:"edited_at,omitempty"`
	DeletedAt     *int64     `json:"deleted_at,omitempty"`
	SyncStatus    SyncStatus `json:"sync_status"`
}

// ChangedAt returns the article's most recent change instant for conflict
// purposes: deletion supersedes edit, edit supersedes creation.
func (a *Article) ChangedAt() int64 {
	if a.DeletedAt != nil {
		return *a.DeletedAt
	}
	if a.EditedAt != nil {
		return *a.EditedAt
	}
	return a.Timestamp
}

// SyncStatus marks whether an article's latest local state has been applied
// to the remote store.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
)

// OperationType classifies an outgoing sync operation.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// SyncOperation is one entry in the durable outgoing-change queue. Article
// carries the snapshot to apply remotely for create/update and is nil for
// delete, where ArticleURL alone identifies the row.
type SyncOperation struct {
	ID         string        `json:"id"`
	Type       OperationType `json:"type"`
	ArticleURL string        `json:"article_url"`
	Article    *Article      `json:"article,omitempty"`
	Timestamp  int64         `json:"timestamp"`
	RetryCount int           `json:"retry_count"`
}

// Cursor identifies a position in a timestamp-ordered listing. URL breaks
// ties so the order stays total when timestamps collide.
type Cursor struct {
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
}

// Encode renders the cursor as an opaque page token.
func (c Cursor) Encode() string {
	return strconv.FormatInt(c.Timestamp, 10) + ":" + c.URL
}

// ParseCursor decodes a page token produced by Encode.
func ParseCursor(token string) (*Cursor, error) {
	idx := strings.IndexByte(token, ':')
	if idx < 1 {
		return nil, fmt.Errorf("malformed cursor %q", token)
	}
	ts, err := strconv.ParseInt(token[:idx], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor %q: %w", token, err)
	}
	return &Cursor{Timestamp: ts, URL: token[idx+1:]}, nil
}

// SortOrder controls listing direction.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// Filters narrow a listing. All set fields compose by logical AND; Tags
// matches if the article carries any of the given tags.
type Filters struct {
	Archived   *bool
	Favorite   *bool
	Domain     string
	SyncStatus SyncStatus
	Tags       []string
}

// ListOptions configures a paginated listing.
type ListOptions struct {
	Limit     int // defaults to DefaultPageSize
	Cursor    *Cursor
	SortOrder SortOrder // defaults to SortDesc
}

// Page is one page of a paginated listing or search.
type Page struct {
	Articles   []Article `json:"articles"`
	HasMore    bool      `json:"has_more"`
	NextCursor *Cursor   `json:"next_cursor,omitempty"`
}

// ArticleUpdate describes a partial update. Nil fields are left untouched.
type ArticleUpdate struct {
	Title         *string
	Description   *string
	FeaturedImage *string
	Domain        *string
	Tags          *[]string
	Notes         *string
	Archived      *bool
	Favorite      *bool
}

// EngineStatus is the orchestrator's externally visible state.
type EngineStatus string

const (
	StatusIdle             EngineStatus = "idle"
	StatusSyncing          EngineStatus = "syncing"
	StatusError            EngineStatus = "error"
	StatusAuthRequired     EngineStatus = "auth-required"
	StatusCheckingAuth     EngineStatus = "checking-auth"
	StatusNotAuthenticated EngineStatus = "not-authenticated"
)

// SyncState is the process-wide observable sync state. It is rebuilt from the
// store's pending count on construction and never persisted.
type SyncState struct {
	Status       EngineStatus `json:"status"`
	PendingCount int          `json:"pending_count"`
	LastSyncTime *time.Time   `json:"last_sync_time,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// StoreStats contains statistics about the local store.
type StoreStats struct {
	ArticleCount  int       `json:"article_count"`
	PendingSync   int       `json:"pending_sync"`
	LastSync      time.Time `json:"last_sync"`
	SchemaVersion string    `json:"schema_version"`
}

// HealthStatus reports client health.
type HealthStatus struct {
	Healthy         bool   `json:"healthy"`
	StoreOK         bool   `json:"store_ok"`
	RemoteReachable bool   `json:"remote_reachable"`
	Error           string `json:"error,omitempty"`
}

// Pagination and search tuning.
const (
	DefaultPageSize = 50

	scoreTitleExact      = 10.0
	scoreTitlePrefix     = 5.0
	scoreTitleSubstring  = 3.0
	scoreDescription     = 1.0
	scoreTag             = 2.0
	scoreDomain          = 1.0
	recencyBonus         = 0.5
	recencyWindow        = 7 * 24 * time.Hour
	minSearchTokenLength = 2
)

// Sync cycle tuning.
const (
	// MaxOperationAttempts is the total attempt budget for one queued
	// operation before it is dropped.
	MaxOperationAttempts = 3

	// SyncTimeout bounds one full sync cycle.
	SyncTimeout = 120 * time.Second

	syncBatchSize      = 5
	syncBatchDelay     = 100 * time.Millisecond
	graceWindow        = 5 * time.Minute
	suspiciousGap      = 365 * 24 * time.Hour
	staleOperationAge  = time.Hour
	countCacheDuration = 30 * time.Second
)
