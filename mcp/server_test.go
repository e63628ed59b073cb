package mcp

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/stash"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := stash.Config{DBPath: filepath.Join(t.TempDir(), "stash.db")}
	client, err := stash.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("stash.New() error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewServer(client)
}

func TestListTools(t *testing.T) {
	s := newTestServer(t)

	tools := s.ListTools()
	want := map[string]bool{
		"stash_save":   false,
		"stash_list":   false,
		"stash_search": false,
		"stash_delete": false,
		"stash_sync":   false,
		"stash_stats":  false,
	}
	for _, tool := range tools {
		if _, ok := want[tool.Name]; !ok {
			t.Errorf("unexpected tool %q", tool.Name)
			continue
		}
		want[tool.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestCallTool_UnknownTool(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool(context.Background(), "stash_nope", nil)
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if !result.IsError {
		t.Error("unknown tool should return an error result")
	}
}

func TestCallTool_SaveAndList(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.CallTool(ctx, "stash_save", map[string]any{
		"url":   "https://example.com/go-sync",
		"title": "Offline Sync in Go",
		"tags":  []any{"go", "sync"},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.IsError {
		t.Fatalf("save returned error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "Offline Sync in Go") {
		t.Errorf("save result = %q", result.Content)
	}

	result, err = s.CallTool(ctx, "stash_list", map[string]any{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.IsError {
		t.Fatalf("list returned error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "https://example.com/go-sync") {
		t.Errorf("list result missing saved article: %q", result.Content)
	}
	if !strings.Contains(result.Content, "tags: go, sync") {
		t.Errorf("list result missing tags: %q", result.Content)
	}
}

func TestCallTool_SaveValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.CallTool(ctx, "stash_save", map[string]any{"title": "No URL"})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "url is required") {
		t.Errorf("result = %+v", result)
	}

	result, err = s.CallTool(ctx, "stash_save", map[string]any{"url": "https://example.com/x"})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "title is required") {
		t.Errorf("result = %+v", result)
	}
}

func TestCallTool_Search(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	seed := map[string]string{
		"https://example.com/golang": "Golang Patterns",
		"https://example.com/cats":   "Cat Pictures",
	}
	for url, title := range seed {
		if _, err := s.CallTool(ctx, "stash_save", map[string]any{"url": url, "title": title}); err != nil {
			t.Fatalf("seed save: %v", err)
		}
	}

	result, err := s.CallTool(ctx, "stash_search", map[string]any{"query": "golang"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.IsError {
		t.Fatalf("search returned error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "Golang Patterns") {
		t.Errorf("search result missing match: %q", result.Content)
	}
	if strings.Contains(result.Content, "Cat Pictures") {
		t.Errorf("search result includes non-match: %q", result.Content)
	}
}

func TestCallTool_SearchRequiresQuery(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool(context.Background(), "stash_search", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if !result.IsError {
		t.Error("search without a query should return an error result")
	}
}

func TestCallTool_Delete(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, err := s.CallTool(ctx, "stash_save", map[string]any{
		"url": "https://example.com/gone", "title": "Soon Gone",
	}); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	result, err := s.CallTool(ctx, "stash_delete", map[string]any{"url": "https://example.com/gone"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if result.IsError {
		t.Fatalf("delete returned error: %s", result.Content)
	}

	result, err = s.CallTool(ctx, "stash_list", map[string]any{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(result.Content, "https://example.com/gone") {
		t.Errorf("deleted article still listed: %q", result.Content)
	}
}

func TestCallTool_SyncOfflineIsError(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool(context.Background(), "stash_sync", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if !result.IsError {
		t.Error("sync without a remote store should return an error result")
	}
}

func TestCallTool_Stats(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, err := s.CallTool(ctx, "stash_save", map[string]any{
		"url": "https://example.com/a", "title": "A",
	}); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	result, err := s.CallTool(ctx, "stash_stats", map[string]any{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if result.IsError {
		t.Fatalf("stats returned error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "Articles: 1") {
		t.Errorf("stats result = %q", result.Content)
	}
	if !strings.Contains(result.Content, "Last sync: never") {
		t.Errorf("stats result = %q", result.Content)
	}
}
