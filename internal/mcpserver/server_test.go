package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sickfar/mdumb/internal/gitsync"
	"github.com/sickfar/mdumb/internal/models"
	"github.com/sickfar/mdumb/internal/testutil"
)

type fakeSync struct{}

func (fakeSync) Status() gitsync.Status { return gitsync.Status{ErrorCount: 2, LastError: "push rejected"} }
func (fakeSync) Info(context.Context) gitsync.Info {
	return gitsync.Info{Enabled: true, Branch: "main"}
}

func testServer(t *testing.T) (*Server, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	return New(env.Service, fakeSync{}, "test"), env
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so dispatch to the
	// handlers by name.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "write_document":
		result, err = srv.writeDocument(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "search_documents":
		result, err = srv.searchDocuments(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestWriteAndReadDocument(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "write_document", map[string]any{
		"path":    "test.md",
		"content": "# Test\nHello",
	})
	if r.IsError {
		t.Fatalf("write failed: %s", resultText(r))
	}
	var wr models.WriteResult
	if err := json.Unmarshal([]byte(resultText(r)), &wr); err != nil || !wr.Success {
		t.Fatalf("write result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_document", map[string]any{"path": "test.md"})
	var rr models.ReadResult
	if err := json.Unmarshal([]byte(resultText(r)), &rr); err != nil {
		t.Fatalf("read result = %q", resultText(r))
	}
	if rr.Content != "# Test\nHello" || rr.Hash != wr.NewHash {
		t.Errorf("read = %+v", rr)
	}
}

func TestWriteDocumentConflict(t *testing.T) {
	srv, env := testServer(t)
	stale := strings.Repeat("0", 64)
	if _, err := env.Service.Write(context.Background(), models.WriteRequest{Path: "a.md", Content: "v1"}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "write_document", map[string]any{
		"path":          "a.md",
		"content":       "v2",
		"expected_hash": stale,
	})
	if !r.IsError || !strings.Contains(resultText(r), "conflict") {
		t.Errorf("expected conflict, got %q", resultText(r))
	}
	got, _ := env.Service.Read(context.Background(), "a.md")
	if got.Content != "v1" {
		t.Errorf("content overwritten: %q", got.Content)
	}
}

func TestReadDocumentErrors(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "read_document", map[string]any{"path": "nope.md"}); !r.IsError {
		t.Error("expected error for missing document")
	}
	r := callTool(t, srv, "read_document", map[string]any{"path": "../secret.md"})
	if !r.IsError || resultText(r) != "invalid path" {
		t.Errorf("traversal = %q", resultText(r))
	}
	if r := callTool(t, srv, "read_document", map[string]any{}); !r.IsError {
		t.Error("expected error for missing path argument")
	}
}

func TestListDocuments(t *testing.T) {
	srv, env := testServer(t)
	ctx := context.Background()
	for _, p := range []string{"a.md", "guides/b.md", "guides/c.md"} {
		if _, err := env.Service.Write(ctx, models.WriteRequest{Path: p, Content: "# x"}); err != nil {
			t.Fatal(err)
		}
	}

	if got := resultText(callTool(t, srv, "list_documents", map[string]any{})); got != "a.md\nguides/b.md\nguides/c.md" {
		t.Errorf("list all = %q", got)
	}
	if got := resultText(callTool(t, srv, "list_documents", map[string]any{"folder": "guides/"})); got != "guides/b.md\nguides/c.md" {
		t.Errorf("list folder = %q", got)
	}
	if got := resultText(callTool(t, srv, "list_documents", map[string]any{"folder": "none"})); got != "no documents found" {
		t.Errorf("list empty = %q", got)
	}
}

func TestSearchDocuments(t *testing.T) {
	srv, env := testServer(t)
	if _, err := env.Service.Write(context.Background(), models.WriteRequest{Path: "go.md", Content: "# Go\nchannels and goroutines"}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "search_documents", map[string]any{"query": "channels"})
	if r.IsError || !strings.Contains(resultText(r), `"path": "go.md"`) {
		t.Errorf("search = %q", resultText(r))
	}
}

func TestSyncStatus(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "sync_status", map[string]any{}))
	if !strings.Contains(text, `"branch": "main"`) || !strings.Contains(text, `"errorCount": 2`) {
		t.Errorf("sync status = %q", text)
	}

	env := testutil.NewEnv(t)
	bare := New(env.Service, nil, "test")
	if text := resultText(callTool(t, bare, "sync_status", map[string]any{})); !strings.Contains(text, `"enabled": false`) {
		t.Errorf("disabled sync status = %q", text)
	}
}
