// Package mcp exposes Stash operations as Model Context Protocol tools
// over stdio, for use by coding agents.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/stash"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with Stash tools.
type Server struct {
	client    *stash.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with Stash tools registered.
func NewServer(client *stash.Client) *Server {
	s := &Server{client: client}

	s.mcpServer = server.NewMCPServer(
		"stash",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "stash_save", Description: "Save an article to the local store; it syncs to the remote store later"},
		{Name: "stash_list", Description: "List saved articles, newest first, with cursor pagination"},
		{Name: "stash_search", Description: "Search saved articles by relevance across title, description, tags, and domain"},
		{Name: "stash_delete", Description: "Delete a saved article by URL"},
		{Name: "stash_sync", Description: "Run one sync cycle against the remote store"},
		{Name: "stash_stats", Description: "Show local store statistics and sync state"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "stash_save":
		return s.handleSave(ctx, args)
	case "stash_list":
		return s.handleList(ctx, args)
	case "stash_search":
		return s.handleSearch(ctx, args)
	case "stash_delete":
		return s.handleDelete(ctx, args)
	case "stash_sync":
		return s.handleSync(ctx, args)
	case "stash_stats":
		return s.handleStats(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("stash_save",
		mcp.WithDescription("Save an article to the local store. The change queues up and flows to the remote store on the next sync."),
		mcp.WithString("url",
			mcp.Description("Article URL (unique key)"),
			mcp.Required(),
		),
		mcp.WithString("title",
			mcp.Description("Article title"),
			mcp.Required(),
		),
		mcp.WithString("description",
			mcp.Description("Short description"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags to attach"),
			mcp.WithStringItems(),
		),
		mcp.WithString("notes",
			mcp.Description("Personal notes"),
		),
	), s.mcpHandleSave)

	s.mcpServer.AddTool(mcp.NewTool("stash_list",
		mcp.WithDescription("List saved articles, newest first. Pass the returned cursor to fetch the next page."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum articles to return (default: 50)"),
		),
		mcp.WithString("cursor",
			mcp.Description("Continuation cursor from a previous page"),
		),
		mcp.WithString("domain",
			mcp.Description("Only articles from this domain"),
		),
		mcp.WithArray("tags",
			mcp.Description("Only articles carrying any of these tags"),
			mcp.WithStringItems(),
		),
	), s.mcpHandleList)

	s.mcpServer.AddTool(mcp.NewTool("stash_search",
		mcp.WithDescription("Search saved articles by relevance across title, description, tags, and domain. Recently saved matches rank slightly higher."),
		mcp.WithString("query",
			mcp.Description("Search query"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum articles to return (default: 50)"),
		),
		mcp.WithString("cursor",
			mcp.Description("Continuation cursor from a previous page"),
		),
	), s.mcpHandleSearch)

	s.mcpServer.AddTool(mcp.NewTool("stash_delete",
		mcp.WithDescription("Delete a saved article. The deletion reaches the remote store on the next sync."),
		mcp.WithString("url",
			mcp.Description("URL of the article to delete"),
			mcp.Required(),
		),
	), s.mcpHandleDelete)

	s.mcpServer.AddTool(mcp.NewTool("stash_sync",
		mcp.WithDescription("Run one sync cycle: push queued local changes, then pull and merge remote state. Requires a configured remote store."),
	), s.mcpHandleSync)

	s.mcpServer.AddTool(mcp.NewTool("stash_stats",
		mcp.WithDescription("Show local store statistics and current sync state. Read-only."),
	), s.mcpHandleStats)
}

// MCP handlers that wrap internal handlers

func (s *Server) mcpHandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleSave(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleList(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleSearch(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleDelete(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleSync(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleStats(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// Internal handlers

func (s *Server) handleSave(ctx context.Context, args map[string]any) (*ToolResult, error) {
	url, ok := args["url"].(string)
	if !ok || url == "" {
		return &ToolResult{Content: "url is required", IsError: true}, nil
	}
	title, ok := args["title"].(string)
	if !ok || title == "" {
		return &ToolResult{Content: "title is required", IsError: true}, nil
	}

	article := stash.Article{URL: url, Title: title}
	if desc, ok := args["description"].(string); ok {
		article.Description = desc
	}
	if notes, ok := args["notes"].(string); ok {
		article.Notes = notes
	}
	article.Tags = toStringSlice(args["tags"])

	saved, err := s.client.Repository().Save(article)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("save failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: fmt.Sprintf("Saved %q (%s), queued for sync", saved.Title, saved.URL)}, nil
}

func (s *Server) handleList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	opts := stash.ListOptions{}
	if limit, ok := args["limit"].(float64); ok {
		opts.Limit = int(limit)
	}
	if token, ok := args["cursor"].(string); ok && token != "" {
		cursor, err := stash.ParseCursor(token)
		if err != nil {
			return &ToolResult{Content: fmt.Sprintf("invalid cursor: %v", err), IsError: true}, nil
		}
		opts.Cursor = cursor
	}

	var filters stash.Filters
	if domain, ok := args["domain"].(string); ok {
		filters.Domain = domain
	}
	filters.Tags = toStringSlice(args["tags"])

	page, err := s.client.Repository().GetPaginated(filters, opts)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("list failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatPage(page)}, nil
}

func (s *Server) handleSearch(ctx context.Context, args map[string]any) (*ToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return &ToolResult{Content: "query is required", IsError: true}, nil
	}

	opts := stash.ListOptions{}
	if limit, ok := args["limit"].(float64); ok {
		opts.Limit = int(limit)
	}
	if token, ok := args["cursor"].(string); ok && token != "" {
		cursor, err := stash.ParseCursor(token)
		if err != nil {
			return &ToolResult{Content: fmt.Sprintf("invalid cursor: %v", err), IsError: true}, nil
		}
		opts.Cursor = cursor
	}

	page, err := s.client.Repository().SearchPaginated(query, opts)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatPage(page)}, nil
}

func (s *Server) handleDelete(ctx context.Context, args map[string]any) (*ToolResult, error) {
	url, ok := args["url"].(string)
	if !ok || url == "" {
		return &ToolResult{Content: "url is required", IsError: true}, nil
	}

	if err := s.client.Repository().Delete(url); err != nil {
		return &ToolResult{Content: fmt.Sprintf("delete failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: fmt.Sprintf("Deleted %s, removal queued for sync", url)}, nil
}

func (s *Server) handleSync(ctx context.Context, args map[string]any) (*ToolResult, error) {
	if err := s.client.Sync(ctx); err != nil {
		return &ToolResult{Content: fmt.Sprintf("sync failed: %v", err), IsError: true}, nil
	}

	state := s.client.State()
	return &ToolResult{Content: fmt.Sprintf("Sync complete, %d operations pending", state.PendingCount)}, nil
}

func (s *Server) handleStats(ctx context.Context, args map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("stats failed: %v", err), IsError: true}, nil
	}

	state := s.client.State()

	var b strings.Builder
	fmt.Fprintf(&b, "Articles: %d\n", stats.ArticleCount)
	fmt.Fprintf(&b, "Pending sync: %d\n", stats.PendingSync)
	fmt.Fprintf(&b, "Sync status: %s\n", state.Status)
	if stats.LastSync.IsZero() {
		b.WriteString("Last sync: never\n")
	} else {
		fmt.Fprintf(&b, "Last sync: %s\n", stats.LastSync.Format(time.RFC3339))
	}
	return &ToolResult{Content: b.String()}, nil
}

// Formatting helpers

func formatPage(page *stash.Page) string {
	if len(page.Articles) == 0 {
		return "No articles found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d article(s):\n\n", len(page.Articles))
	for i, a := range page.Articles {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, a.Title, a.URL)
		if len(a.Tags) > 0 {
			fmt.Fprintf(&b, "   tags: %s\n", strings.Join(a.Tags, ", "))
		}
	}
	if page.HasMore && page.NextCursor != nil {
		fmt.Fprintf(&b, "\nMore results available; pass cursor %q to continue.\n", page.NextCursor.Encode())
	}
	return b.String()
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
