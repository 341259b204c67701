// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the content store to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sickfar/mdumb/internal/apperr"
	"github.com/sickfar/mdumb/internal/docservice"
	"github.com/sickfar/mdumb/internal/gitsync"
	"github.com/sickfar/mdumb/internal/models"
)

const formatURI = "mdumb://document-format"

// SyncReporter is the read-only view of git sync exposed to clients.
type SyncReporter interface {
	Status() gitsync.Status
	Info(ctx context.Context) gitsync.Info
}

// Server wraps the MCP server with document tools.
type Server struct {
	mcp  *server.MCPServer
	docs *docservice.Service
	sync SyncReporter
}

// New creates a new MCP server with all tools registered. sync may be nil
// when git sync is not configured.
func New(docs *docservice.Service, sync SyncReporter, version string) *Server {
	s := &Server{docs: docs, sync: sync}

	s.mcp = server.NewMCPServer(
		"mdumb",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a Markdown document. Returns its content and the content hash "+
			"to pass as expected_hash when writing it back."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. guides/setup.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("write_document",
		mcp.WithDescription("Create or replace a document. When expected_hash is given and the file "+
			"changed since it was read, nothing is written and the current hash is returned. "+
			"See the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the document")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full Markdown content")),
		mcp.WithString("expected_hash", mcp.Description("Hash returned by read_document; omit to overwrite unconditionally")),
	), s.writeDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List visible documents, optionally under a folder. Ignored paths are omitted."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Search titles and content of visible documents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report git sync state: branch, last commit, last sync and recent errors."),
	), s.syncStatus)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Document Format",
			mcp.WithResourceDescription("How documents, hashes and the ignore file work."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrPathTraversal), errors.Is(err, apperr.ErrInvalidPath):
		return mcp.NewToolResultError("invalid path")
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError("already exists")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.docs.Read(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	if !res.Exists {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return jsonResult(res)
}

func (s *Server) writeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	wr := models.WriteRequest{Path: path, Content: content}
	if h := req.GetString("expected_hash", ""); h != "" {
		wr.ExpectedHash = &h
	}
	res, err := s.docs.Write(ctx, wr)
	if err != nil {
		return toolError(err), nil
	}
	if !res.Success {
		return mcp.NewToolResultError(fmt.Sprintf(
			"conflict: %s changed since it was read; current hash %s", path, res.Conflict.CurrentHash)), nil
	}
	return jsonResult(res)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(req.GetString("folder", ""), "/")

	items, _, err := s.docs.List(ctx, 0, 0)
	if err != nil {
		return toolError(err), nil
	}

	var paths []string
	for _, it := range items {
		if folder != "" && !strings.HasPrefix(it.Path, folder+"/") {
			continue
		}
		paths = append(paths, it.Path)
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.docs.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) syncStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.sync == nil {
		return jsonResult(gitsync.Info{})
	}
	return jsonResult(struct {
		Status gitsync.Status `json:"status"`
		Info   gitsync.Info   `json:"info"`
	}{s.sync.Status(), s.sync.Info(ctx)})
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormat,
		},
	}, nil
}
