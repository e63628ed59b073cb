// Package sheets implements stash.SpreadsheetStorage against a remote
// tabular store reached over authenticated HTTP. Rows are 1-indexed with a
// fixed header at row 1.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/stash"
)

// rowCacheTTL bounds how long a fetched row snapshot absorbs repeated reads
// within one sync cycle. Any write invalidates the snapshot immediately.
const rowCacheTTL = 30 * time.Second

// Client talks to the remote tabular store. Stateless except for two caches:
// the resolved spreadsheet handle and a short-lived row snapshot.
type Client struct {
	baseURL    string
	title      string
	auth       stash.AuthProvider
	httpClient *http.Client
	log        *stash.DebugLogger

	mu            sync.Mutex
	spreadsheetID string
	snapshot      [][]string
	snapshotAt    time.Time
}

var _ stash.SpreadsheetStorage = (*Client)(nil)

// NewClient creates a remote store client. title names the backing
// spreadsheet, found or created on first use.
func NewClient(baseURL, title string, auth stash.AuthProvider, log *stash.DebugLogger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		title:   title,
		auth:    auth,
		log:     log,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// EnsureSpreadsheet resolves the backing spreadsheet by title, creating it
// with the header row when absent. The handle is cached after the first
// resolution.
func (c *Client) EnsureSpreadsheet(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.spreadsheetID != "" {
		id := c.spreadsheetID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var list listSpreadsheetsResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/spreadsheets?title="+url.QueryEscape(c.title), nil, &list, "list_spreadsheets")
	if err != nil {
		return "", err
	}

	var id string
	for _, s := range list.Spreadsheets {
		if s.Title == c.title {
			id = s.ID
			break
		}
	}

	if id == "" {
		var created createSpreadsheetResponse
		req := createSpreadsheetRequest{Title: c.title, Header: HeaderRow}
		if err := c.doJSON(ctx, http.MethodPost, "/v1/spreadsheets", req, &created, "create_spreadsheet"); err != nil {
			return "", err
		}
		id = created.ID
	}

	c.mu.Lock()
	c.spreadsheetID = id
	c.mu.Unlock()
	return id, nil
}

// ListArticles fetches and decodes the full remote article set.
func (c *Client) ListArticles(ctx context.Context) ([]stash.Article, error) {
	rows, err := c.getRows(ctx)
	if err != nil {
		return nil, err
	}

	// Row 1 is the header.
	articles := make([]stash.Article, 0, max(len(rows)-1, 0))
	for i := 1; i < len(rows); i++ {
		articles = append(articles, rowToArticle(rows[i]))
	}
	return articles, nil
}

// AppendArticle adds a single row.
func (c *Client) AppendArticle(ctx context.Context, a stash.Article) error {
	return c.AppendArticles(ctx, []stash.Article{a})
}

// AppendArticles adds several rows in one round-trip.
func (c *Client) AppendArticles(ctx context.Context, articles []stash.Article) error {
	if len(articles) == 0 {
		return nil
	}
	id, err := c.EnsureSpreadsheet(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, len(articles))
	for i, a := range articles {
		rows[i] = articleToRow(a)
	}

	err = c.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/v1/spreadsheets/%s/rows:append", id),
		appendRowsRequest{Rows: rows}, nil, "append_rows")
	if err != nil {
		return err
	}

	c.invalidateSnapshot()
	return nil
}

// UpdateArticle rewrites the row keyed by the article's URL. A row that
// vanished remotely is re-appended rather than failed, keeping the operation
// effectively an upsert.
func (c *Client) UpdateArticle(ctx context.Context, a stash.Article) error {
	id, err := c.EnsureSpreadsheet(ctx)
	if err != nil {
		return err
	}

	rowNum, err := c.findRow(ctx, a.URL)
	if err != nil {
		return err
	}
	if rowNum == 0 {
		c.log.LogSync("update", "row for "+a.URL+" missing remotely, appending")
		return c.AppendArticle(ctx, a)
	}

	err = c.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("/v1/spreadsheets/%s/rows/%d", id, rowNum),
		updateRowRequest{Row: articleToRow(a)}, nil, "update_row")
	if err != nil {
		return err
	}

	c.invalidateSnapshot()
	return nil
}

// DeleteArticle removes the row keyed by url. Deleting a row that is already
// gone is a no-op.
func (c *Client) DeleteArticle(ctx context.Context, url string) error {
	id, err := c.EnsureSpreadsheet(ctx)
	if err != nil {
		return err
	}

	rowNum, err := c.findRow(ctx, url)
	if err != nil {
		return err
	}
	if rowNum == 0 {
		return nil
	}

	err = c.doJSON(ctx, http.MethodDelete,
		fmt.Sprintf("/v1/spreadsheets/%s/rows/%d", id, rowNum), nil, nil, "delete_row")
	if err != nil {
		return err
	}

	c.invalidateSnapshot()
	return nil
}

// findRow returns the 1-indexed sheet row holding the given URL, or 0 when
// absent.
func (c *Client) findRow(ctx context.Context, url string) (int, error) {
	rows, err := c.getRows(ctx)
	if err != nil {
		return 0, err
	}
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) > 0 && rows[i][colURL] == url {
			return i + 1, nil
		}
	}
	return 0, nil
}

// getRows returns the full sheet, serving from the snapshot cache when
// fresh.
func (c *Client) getRows(ctx context.Context) ([][]string, error) {
	c.mu.Lock()
	if c.snapshot != nil && time.Since(c.snapshotAt) < rowCacheTTL {
		rows := c.snapshot
		c.mu.Unlock()
		return rows, nil
	}
	c.mu.Unlock()

	id, err := c.EnsureSpreadsheet(ctx)
	if err != nil {
		return nil, err
	}

	var resp rowsResponse
	err = c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/v1/spreadsheets/%s/rows", id), nil, &resp, "get_rows")
	if err != nil {
		return nil, err
	}
	if resp.Rows == nil {
		return nil, &stash.RemotePayloadError{Reason: "response not list-shaped"}
	}

	c.mu.Lock()
	c.snapshot = resp.Rows
	c.snapshotAt = time.Now()
	c.mu.Unlock()

	return resp.Rows, nil
}

func (c *Client) invalidateSnapshot() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any, op string) error {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var body io.Reader
	var raw []byte
	if reqBody != nil {
		raw, err = json.Marshal(reqBody)
		if err != nil {
			return &stash.SyncError{Operation: op, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &stash.SyncError{Operation: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "stash-client/1.0")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.log.LogRequest(method, c.baseURL+path, raw)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &stash.SyncError{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respRaw, _ := io.ReadAll(resp.Body)
		c.log.LogResponse(resp.StatusCode, resp.Status, respRaw)
		if resp.StatusCode == http.StatusUnauthorized {
			// Force a token refresh on the next attempt.
			_ = c.auth.ClearToken()
		}
		return newSyncError(op, resp.StatusCode, respRaw)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return &stash.SyncError{Operation: op, Err: err}
		}
	}
	return nil
}

func newSyncError(op string, statusCode int, body []byte) *stash.SyncError {
	msg := ""
	if len(body) > 0 && statusCode >= 400 {
		if len(body) > 200 {
			msg = string(body[:200]) + "..."
		} else {
			msg = string(body)
		}
	}
	return &stash.SyncError{
		Operation:  op,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, msg),
	}
}
