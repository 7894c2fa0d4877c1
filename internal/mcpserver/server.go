// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Zotero library to LLM tooling via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/zotindex/internal/apperr"
	"github.com/starford/zotindex/internal/itemservice"
)

// ItemFormatURI is the resource describing the item record.
const ItemFormatURI = "zotindex://item-format"

// Server wraps the MCP server with library tools.
type Server struct {
	mcp *server.MCPServer
	svc *itemservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *itemservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"zotindex",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_items",
		mcp.WithDescription("Ranked full-text search over the Zotero library. "+
			"Words are matched as prefixes and all must occur. ASCII queries also match accented text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search words")),
		mcp.WithString("column", mcp.Description("Optional column to restrict matching to (e.g. title, creators, tags)")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchItems)

	s.mcp.AddTool(mcp.NewTool("get_item",
		mcp.WithDescription("Return the full JSON record of a library item. "+
			"See the zotindex://item-format resource for its structure."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Zotero item key (e.g. C3KEUQJW)")),
	), s.getItem)

	s.mcp.AddTool(mcp.NewTool("sync_library",
		mcp.WithDescription("Bring the local mirror, cache and search indexes up to date with Zotero."),
		mcp.WithBoolean("force", mcp.Description("Rebuild even when everything looks fresh")),
	), s.syncLibrary)

	s.mcp.AddTool(mcp.NewTool("library_status",
		mcp.WithDescription("Report item counts, timestamps and whether the library is fresh."),
	), s.libraryStatus)

	s.mcp.AddTool(mcp.NewTool("get_item_format",
		mcp.WithDescription("Returns the description of the item record returned by get_item."),
	), s.getItemFormat)

	s.mcp.AddResource(
		mcp.NewResource(ItemFormatURI, "Item Format",
			mcp.WithResourceDescription("Structure of the JSON item record."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readItemFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	column := req.GetString("column", "")
	limit := req.GetInt("limit", 0)

	results, err := s.svc.Search(ctx, query, column, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no items found"), nil
	}
	return jsonResult(results)
}

func (s *Server) getItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	it, err := s.svc.GetItem(ctx, key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(it)
}

func (s *Server) syncLibrary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Sync(ctx, req.GetBool("force", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !rep.CacheRebuilt {
		return mcp.NewToolResultText("library is fresh, nothing to do"), nil
	}
	return jsonResult(rep)
}

func (s *Server) libraryStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) getItemFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ItemFormat), nil
}

func (s *Server) readItemFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ItemFormatURI,
			MIMEType: "text/markdown",
			Text:     ItemFormat,
		},
	}, nil
}
