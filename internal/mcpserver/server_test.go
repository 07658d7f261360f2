package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/canvasfocus/internal/focus"
	"github.com/starford/canvasfocus/internal/index"
	"github.com/starford/canvasfocus/internal/noteservice"
	"github.com/starford/canvasfocus/internal/scratch"
	"github.com/starford/canvasfocus/internal/settings"
	"github.com/starford/canvasfocus/internal/testutil"
	"github.com/starford/canvasfocus/internal/workspace"
)

const board = `{"nodes":[
	{"id":"f1","type":"file","file":"a.md","x":0,"y":0,"width":400,"height":400},
	{"id":"t1","type":"text","text":"no heading here","x":0,"y":500,"width":250,"height":120}
],"edges":[]}`

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	testutil.WriteFiles(t, dir, map[string]string{
		"board.canvas": board,
		"a.md":         "# Alpha\nneedle text\n",
	})
	if err := index.Sync(db, store, nil, logger); err != nil {
		t.Fatal(err)
	}

	ws := workspace.New(store, ".canvasfocus/workspace.json", nil, logger)
	ctrl := focus.New(focus.Deps{
		Store:    store,
		Settings: settings.Load(store, ".canvasfocus/state.toml", settings.State{Enabled: true}, logger),
		Scratch:  scratch.New(store, "canvas-focus-temp", logger),
		Host:     ws,
		Logger:   logger,
	}, focus.Options{
		SelectionInterval: time.Hour,
		NodeInterval:      time.Hour,
		DocumentDebounce:  10 * time.Millisecond,
		CanvasSaveDelay:   time.Hour,
	})
	ws.OnClose(ctrl.SurfaceClosed)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)

	return New(noteservice.NewService(store, db), ctrl), dir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so handlers are invoked directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"get_focus_state": srv.getFocusState,
		"activate_canvas": srv.activateCanvas,
		"select_nodes":    srv.selectNodes,
		"set_node_text":   srv.setNodeText,
		"promote_node":    srv.promoteNode,
		"toggle_focus":    srv.toggleFocus,
		"read_note":       srv.readNote,
		"search_notes":    srv.searchNotes,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
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

func TestToolsRegistered(t *testing.T) {
	srv, _ := testServer(t)
	tools := srv.MCPServer().ListTools()
	for _, name := range []string{"get_focus_state", "activate_canvas", "select_nodes", "set_node_text", "promote_node", "toggle_focus", "read_note", "search_notes"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestSelectBeforeActivate(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "select_nodes", map[string]any{"ids": "f1"})
	if !r.IsError {
		t.Error("expected error without an active canvas")
	}
}

func TestActivateAndSelect(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "activate_canvas", map[string]any{"path": "a.md"}); !r.IsError {
		t.Error("non-canvas path should fail")
	}
	if r := callTool(t, srv, "activate_canvas", map[string]any{"path": "board.canvas"}); r.IsError {
		t.Fatalf("activate: %s", resultText(r))
	}

	r := callTool(t, srv, "select_nodes", map[string]any{"ids": " f1 "})
	var st focus.State
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatalf("state: %v (%s)", err, resultText(r))
	}
	if st.Selection != "f1" || st.SurfaceID == "" {
		t.Errorf("state = %+v", st)
	}

	if r := callTool(t, srv, "select_nodes", map[string]any{"ids": "ghost"}); !r.IsError {
		t.Error("unknown node should fail")
	}
}

func TestSetNodeText(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "activate_canvas", map[string]any{"path": "board.canvas"})

	r := callTool(t, srv, "set_node_text", map[string]any{"id": "t1", "text": "# Fresh"})
	if r.IsError || resultText(r) != "updated: t1" {
		t.Errorf("set text = %q", resultText(r))
	}
	if r := callTool(t, srv, "set_node_text", map[string]any{"id": "f1", "text": "x"}); !r.IsError {
		t.Error("file node should reject text")
	}
}

func TestPromoteNode(t *testing.T) {
	srv, dir := testServer(t)
	_ = callTool(t, srv, "activate_canvas", map[string]any{"path": "board.canvas"})
	_ = callTool(t, srv, "select_nodes", map[string]any{"ids": "t1"})

	r := callTool(t, srv, "promote_node", map[string]any{})
	if !r.IsError || !strings.Contains(resultText(r), "name") {
		t.Fatalf("promote without heading or name = %q", resultText(r))
	}

	r = callTool(t, srv, "promote_node", map[string]any{"name": "Ideas"})
	if r.IsError {
		t.Fatalf("promote: %s", resultText(r))
	}
	data, err := os.ReadFile(filepath.Join(dir, "Ideas.md"))
	if err != nil || string(data) != "no heading here" {
		t.Errorf("Ideas.md = %q, %v", data, err)
	}
}

func TestToggleFocus(t *testing.T) {
	srv, _ := testServer(t)
	if got := resultText(callTool(t, srv, "toggle_focus", nil)); got != "focus disabled" {
		t.Errorf("first toggle = %q", got)
	}
	if got := resultText(callTool(t, srv, "toggle_focus", nil)); got != "focus enabled" {
		t.Errorf("second toggle = %q", got)
	}
}

func TestReadAndSearchNotes(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_note", map[string]any{"path": "a.md"})
	if resultText(r) != "# Alpha\nneedle text\n" {
		t.Errorf("read = %q", resultText(r))
	}
	if r := callTool(t, srv, "read_note", map[string]any{"path": "nope.md"}); !r.IsError {
		t.Error("expected error for missing note")
	}

	r = callTool(t, srv, "search_notes", map[string]any{"query": "needle"})
	if !strings.Contains(resultText(r), "a.md") {
		t.Errorf("search = %q", resultText(r))
	}
}
